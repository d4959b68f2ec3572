package database

import (
	"context"
	"database/sql"
	"fmt"

	"gridmarket-go/internal/models"
	"gridmarket-go/internal/store"
)

func (s *Service) GetSession(ctx context.Context, sid string) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	err := s.db.QueryRowContext(ctx, queryGetSession, sid).Scan(&rec.Sid, &rec.Data, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: session", store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &rec, nil
}

func (s *Service) PutSession(ctx context.Context, rec models.SessionRecord) error {
	if _, err := s.db.ExecContext(ctx, queryUpsertSession, rec.Sid, rec.Data, rec.ExpiresAt); err != nil {
		return fmt.Errorf("failed to put session: %w", err)
	}
	return nil
}

func (s *Service) DeleteSession(ctx context.Context, sid string) error {
	if _, err := s.db.ExecContext(ctx, queryDeleteSession, sid); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Service) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryDeleteExpiredSessions)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
