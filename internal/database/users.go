package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gridmarket-go/internal/models"
	"gridmarket-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// scanUser reads one user row. Balance columns are decimal strings.
func scanUser(row interface {
	Scan(dest ...interface{}) error
}) (*models.User, error) {
	var user models.User
	var energyStr, ethStr, earningsStr string
	err := row.Scan(&user.Id, &user.WalletAddress, &energyStr, &ethStr, &earningsStr,
		&user.IsNewUser, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if user.EnergyBalance, err = decimal.NewFromString(energyStr); err != nil {
		return nil, fmt.Errorf("failed to parse energy balance '%s': %w", energyStr, err)
	}
	if user.EthBalance, err = decimal.NewFromString(ethStr); err != nil {
		return nil, fmt.Errorf("failed to parse eth balance '%s': %w", ethStr, err)
	}
	if user.TotalEarnings, err = decimal.NewFromString(earningsStr); err != nil {
		return nil, fmt.Errorf("failed to parse total earnings '%s': %w", earningsStr, err)
	}

	return &user, nil
}

func (s *Service) GetUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return users, nil
}

func (s *Service) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, queryGetUserById, userId))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, userId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Service) GetUserByWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, queryGetUserByWallet, strings.ToLower(walletAddress)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: wallet %s", store.ErrNotFound, walletAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by wallet: %w", err)
	}
	return user, nil
}

// CreateUser inserts a new participant with the initial energy grant already
// credited. The wallet address is lowercased before it becomes a key.
func (s *Service) CreateUser(ctx context.Context, walletAddress string, energyGrant decimal.Decimal) (*models.User, error) {
	wallet := strings.ToLower(walletAddress)
	userId := uuid.New().String()

	_, err := s.db.ExecContext(ctx, queryInsertUser, userId, wallet, energyGrant.String())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", store.ErrDuplicateWallet, wallet)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	zap.L().Info("User created",
		zap.String("user_id", userId),
		zap.String("wallet", wallet),
		zap.String("energy_grant", energyGrant.String()))

	return s.GetUserById(ctx, userId)
}

// SetUserBalances overwrites the chain-mirrored balance fields. Used by the
// reconciler only; settlement goes through ApplyPurchase.
func (s *Service) SetUserBalances(ctx context.Context, userId string, ethBalance, energyBalance decimal.Decimal) error {
	result, err := s.db.ExecContext(ctx, querySetUserBalances, ethBalance.String(), energyBalance.String(), userId)
	if err != nil {
		return fmt.Errorf("failed to set balances: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, userId)
	}

	return nil
}
