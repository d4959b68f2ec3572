package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gridmarket-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// GetTradesByUser returns the user's trade history (as buyer or seller),
// newest first, enriched with both counterparty wallets.
func (s *Service) GetTradesByUser(ctx context.Context, userId string, limit, offset int) ([]models.EnrichedTrade, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, queryGetTradesByUser, userId, userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var trades []models.EnrichedTrade
	for rows.Next() {
		var t models.EnrichedTrade
		var amountStr, rateStr, costStr string
		err := rows.Scan(&t.Id, &t.ListingId, &t.BuyerWallet, &t.SellerWallet,
			&amountStr, &rateStr, &costStr, &t.Kind, &t.ExternalTxRef, &t.Status, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		if t.AmountKWh, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse trade amount '%s': %w", amountStr, err)
		}
		if t.RatePerKWh, err = decimal.NewFromString(rateStr); err != nil {
			return nil, fmt.Errorf("failed to parse trade rate '%s': %w", rateStr, err)
		}
		if t.TotalCost, err = decimal.NewFromString(costStr); err != nil {
			return nil, fmt.Errorf("failed to parse trade cost '%s': %w", costStr, err)
		}

		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}

	return trades, nil
}
