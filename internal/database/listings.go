package database

import (
	"context"
	"database/sql"
	"fmt"

	"gridmarket-go/internal/models"
	"gridmarket-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanListing(row interface {
	Scan(dest ...interface{}) error
}) (*models.Listing, error) {
	var listing models.Listing
	var amountStr, rateStr, totalStr string
	var externalListingId sql.NullString
	err := row.Scan(&listing.Id, &listing.SellerId, &amountStr, &rateStr, &totalStr,
		&listing.IsActive, &listing.ExternalTxRef, &externalListingId,
		&listing.Version, &listing.CreatedAt, &listing.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if listing.AmountKWh, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse listing amount '%s': %w", amountStr, err)
	}
	if listing.RatePerKWh, err = decimal.NewFromString(rateStr); err != nil {
		return nil, fmt.Errorf("failed to parse listing rate '%s': %w", rateStr, err)
	}
	if listing.TotalValue, err = decimal.NewFromString(totalStr); err != nil {
		return nil, fmt.Errorf("failed to parse listing total '%s': %w", totalStr, err)
	}
	listing.ExternalListingId = externalListingId.String

	return &listing, nil
}

func (s *Service) GetListing(ctx context.Context, listingId string) (*models.Listing, error) {
	listing, err := scanListing(s.db.QueryRowContext(ctx, queryGetListing, listingId))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: listing %s", store.ErrNotFound, listingId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return listing, nil
}

func (s *Service) GetActiveListings(ctx context.Context) ([]models.EnrichedListing, error) {
	rows, err := s.db.QueryContext(ctx, queryGetActiveListings)
	if err != nil {
		return nil, fmt.Errorf("failed to get active listings: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var listings []models.EnrichedListing
	for rows.Next() {
		var l models.EnrichedListing
		var amountStr, rateStr, totalStr string
		err := rows.Scan(&l.Id, &l.SellerId, &l.SellerWallet, &amountStr, &rateStr,
			&totalStr, &l.IsActive, &l.ExternalTxRef, &l.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}

		if l.AmountKWh, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse listing amount '%s': %w", amountStr, err)
		}
		if l.RatePerKWh, err = decimal.NewFromString(rateStr); err != nil {
			return nil, fmt.Errorf("failed to parse listing rate '%s': %w", rateStr, err)
		}
		if l.TotalValue, err = decimal.NewFromString(totalStr); err != nil {
			return nil, fmt.Errorf("failed to parse listing total '%s': %w", totalStr, err)
		}

		listings = append(listings, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listing rows: %w", err)
	}

	return listings, nil
}

// CreateListing debits the seller's energy balance and inserts the listing in
// one storage transaction. The debit is guarded by the balance value read
// inside the transaction, so an interleaved writer surfaces as
// ErrConcurrentModification rather than a silent oversubscription.
func (s *Service) CreateListing(ctx context.Context, params store.CreateListingParams) (*models.Listing, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seller, err := scanUser(tx.QueryRowContext(ctx, queryGetUserById, params.SellerId))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, params.SellerId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read seller: %w", err)
	}

	newEnergy := seller.EnergyBalance.Sub(params.AmountKWh)
	if newEnergy.IsNegative() {
		return nil, store.ErrConcurrentModification
	}

	result, err := tx.ExecContext(ctx, queryDebitSellerEnergy,
		newEnergy.String(), params.SellerId, seller.EnergyBalance.String())
	if err != nil {
		return nil, fmt.Errorf("failed to debit seller energy: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	} else if n == 0 {
		return nil, store.ErrConcurrentModification
	}

	listingId := uuid.New().String()
	totalValue := params.AmountKWh.Mul(params.RatePerKWh)
	_, err = tx.ExecContext(ctx, queryInsertListing,
		listingId, params.SellerId, params.AmountKWh.String(), params.RatePerKWh.String(),
		totalValue.String(), params.ExternalTxRef)
	if err != nil {
		return nil, fmt.Errorf("failed to insert listing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Listing created",
		zap.String("listing_id", listingId),
		zap.String("seller_id", params.SellerId),
		zap.String("amount_kwh", params.AmountKWh.String()),
		zap.String("total_value", totalValue.String()))

	return s.GetListing(ctx, listingId)
}

// ApplyPurchase applies all legs of one settled purchase atomically: buyer
// pays and receives energy, seller is paid and credited earnings, the listing
// shrinks (deactivating at zero), and the trade row is appended. The seller's
// energy leg is intentionally absent: it moved into escrow at listing time.
func (s *Service) ApplyPurchase(ctx context.Context, params store.PurchaseParams) (*models.Trade, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	listing, err := scanListing(tx.QueryRowContext(ctx, queryGetListing, params.ListingId))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: listing %s", store.ErrNotFound, params.ListingId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read listing: %w", err)
	}
	if !listing.IsActive {
		return nil, store.ErrListingClosed
	}

	remaining := listing.AmountKWh.Sub(params.AmountKWh)
	if remaining.IsNegative() {
		return nil, store.ErrConcurrentModification
	}
	newTotal := remaining.Mul(listing.RatePerKWh)
	stillActive := 1
	if remaining.IsZero() {
		stillActive = 0
		newTotal = decimal.Zero
	}

	result, err := tx.ExecContext(ctx, queryShrinkListing,
		remaining.String(), newTotal.String(), stillActive, params.ListingId, params.ListingVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to shrink listing: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	} else if n == 0 {
		return nil, store.ErrConcurrentModification
	}

	buyer, err := scanUser(tx.QueryRowContext(ctx, queryGetUserById, params.BuyerId))
	if err != nil {
		return nil, fmt.Errorf("failed to read buyer: %w", err)
	}
	seller, err := scanUser(tx.QueryRowContext(ctx, queryGetUserById, params.SellerId))
	if err != nil {
		return nil, fmt.Errorf("failed to read seller: %w", err)
	}

	newBuyerEth := buyer.EthBalance.Sub(params.TotalCost)
	if newBuyerEth.IsNegative() {
		return nil, store.ErrConcurrentModification
	}
	newBuyerEnergy := buyer.EnergyBalance.Add(params.AmountKWh)

	if _, err := tx.ExecContext(ctx, queryApplyBuyerLegs,
		newBuyerEth.String(), newBuyerEnergy.String(), params.BuyerId); err != nil {
		return nil, fmt.Errorf("failed to apply buyer legs: %w", err)
	}

	newSellerEth := seller.EthBalance.Add(params.TotalCost)
	newEarnings := seller.TotalEarnings.Add(params.TotalCost)
	if _, err := tx.ExecContext(ctx, queryApplySellerLegs,
		newSellerEth.String(), newEarnings.String(), params.SellerId); err != nil {
		return nil, fmt.Errorf("failed to apply seller legs: %w", err)
	}

	trade := &models.Trade{
		Id:            uuid.New().String(),
		BuyerId:       params.BuyerId,
		SellerId:      params.SellerId,
		ListingId:     params.ListingId,
		AmountKWh:     params.AmountKWh,
		RatePerKWh:    params.RatePerKWh,
		TotalCost:     params.TotalCost,
		Kind:          models.TradeKindBuy,
		ExternalTxRef: params.ExternalTxRef,
		Status:        params.Status,
		CreatedAt:     nowUTC(),
	}
	if _, err := tx.ExecContext(ctx, queryInsertTrade,
		trade.Id, trade.BuyerId, trade.SellerId, trade.ListingId,
		trade.AmountKWh.String(), trade.RatePerKWh.String(), trade.TotalCost.String(),
		trade.Kind, trade.ExternalTxRef, trade.Status, trade.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert trade: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Purchase applied",
		zap.String("trade_id", trade.Id),
		zap.String("listing_id", params.ListingId),
		zap.String("buyer_id", params.BuyerId),
		zap.String("amount_kwh", params.AmountKWh.String()),
		zap.String("total_cost", params.TotalCost.String()),
		zap.String("remaining_kwh", remaining.String()))

	return trade, nil
}

// CancelListing deactivates the listing and credits the unsold remainder back
// to the seller's energy balance in one storage transaction.
func (s *Service) CancelListing(ctx context.Context, params store.CancelListingParams) (*models.Listing, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, queryCloseListing, params.ListingId, params.ListingVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to close listing: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	} else if n == 0 {
		return nil, store.ErrConcurrentModification
	}

	seller, err := scanUser(tx.QueryRowContext(ctx, queryGetUserById, params.SellerId))
	if err != nil {
		return nil, fmt.Errorf("failed to read seller: %w", err)
	}

	restored := seller.EnergyBalance.Add(params.RemainingKWh)
	if _, err := tx.ExecContext(ctx, queryCreditSellerEnergy, restored.String(), params.SellerId); err != nil {
		return nil, fmt.Errorf("failed to credit seller energy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Listing cancelled",
		zap.String("listing_id", params.ListingId),
		zap.String("seller_id", params.SellerId),
		zap.String("restored_kwh", params.RemainingKWh.String()))

	return s.GetListing(ctx, params.ListingId)
}
