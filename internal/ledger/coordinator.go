// Package ledger is the settlement engine: it validates and applies listing
// creation, purchases and cancellations against user balances and listing
// state, keeping the off-chain ledger consistent with the escrow contract.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"gridmarket-go/internal/chain"
	"gridmarket-go/internal/models"
	"gridmarket-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Sentinel errors for settlement operations.
var (
	ErrInvalidAmount      = errors.New("amount and rate must be positive")
	ErrInsufficientEnergy = errors.New("insufficient energy balance")
	ErrInsufficientFunds  = errors.New("insufficient eth balance")
	ErrListingInactive    = errors.New("listing is not active")
	ErrSelfPurchase       = errors.New("cannot buy from own listing")
	ErrNotOwner           = errors.New("listing belongs to another seller")
	ErrSettlementFailed   = errors.New("external settlement failed")
)

// Coordinator applies market operations. Each operation follows the same
// discipline: validate under the entity locks, release them for the slow
// external settlement call, then re-acquire, re-validate and commit in one
// storage transaction. The locks prevent interleaved read-modify-write on the
// same listing or user; the re-validation catches anything that changed while
// the external call was in flight.
type Coordinator struct {
	store      store.MarketStore
	settlement chain.SettlementClient
	locks      *entityLocks
}

func NewCoordinator(st store.MarketStore, settlement chain.SettlementClient) *Coordinator {
	return &Coordinator{
		store:      st,
		settlement: settlement,
		locks:      newEntityLocks(),
	}
}

// CreateListingParams are the caller-facing inputs; SellerId always comes
// from the authenticated session.
type CreateListingParams struct {
	SellerId   string
	AmountKWh  decimal.Decimal
	RatePerKWh decimal.Decimal
	// ExternalTxRef, when non-empty, is a client-confirmed escrow
	// transaction; the deposit call is skipped and the ref recorded as-is.
	ExternalTxRef string
}

// CreateListing validates the offer, escrows the seller's energy on chain,
// and records the listing with the energy debit applied
// (escrow-debit-on-create: the listing amount is fully backed from creation).
func (c *Coordinator) CreateListing(ctx context.Context, params CreateListingParams) (*models.Listing, error) {
	if !params.AmountKWh.IsPositive() || !params.RatePerKWh.IsPositive() {
		return nil, ErrInvalidAmount
	}

	unlock := c.locks.acquire(params.SellerId)
	seller, err := c.store.GetUserById(ctx, params.SellerId)
	if err != nil {
		unlock()
		return nil, err
	}
	if seller.EnergyBalance.LessThan(params.AmountKWh) {
		unlock()
		return nil, fmt.Errorf("%w: have %s, need %s",
			ErrInsufficientEnergy, seller.EnergyBalance.String(), params.AmountKWh.String())
	}
	unlock()

	txRef := params.ExternalTxRef
	if txRef == "" {
		txRef, err = c.settlement.EscrowDeposit(ctx, seller.WalletAddress, params.AmountKWh)
		if err != nil {
			zap.L().Error("Escrow deposit failed, listing not recorded",
				zap.String("seller_id", params.SellerId), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
	}

	unlock = c.locks.acquire(params.SellerId)
	defer unlock()

	// Balance may have moved while the escrow call was in flight.
	seller, err = c.store.GetUserById(ctx, params.SellerId)
	if err != nil {
		return nil, err
	}
	if seller.EnergyBalance.LessThan(params.AmountKWh) {
		c.refundBestEffort(seller.WalletAddress, params.AmountKWh, txRef)
		return nil, fmt.Errorf("%w: have %s, need %s",
			ErrInsufficientEnergy, seller.EnergyBalance.String(), params.AmountKWh.String())
	}

	listing, err := c.store.CreateListing(ctx, store.CreateListingParams{
		SellerId:      params.SellerId,
		AmountKWh:     params.AmountKWh,
		RatePerKWh:    params.RatePerKWh,
		ExternalTxRef: txRef,
	})
	if err != nil {
		if errors.Is(err, store.ErrConcurrentModification) {
			c.refundBestEffort(seller.WalletAddress, params.AmountKWh, txRef)
		}
		return nil, err
	}

	return listing, nil
}

// BuyParams are the caller-facing purchase inputs; BuyerId always comes from
// the authenticated session.
type BuyParams struct {
	BuyerId       string
	ListingId     string
	Amount        decimal.Decimal
	ExternalTxRef string
}

// BuyEnergy purchases part of a listing. All balance and listing mutations
// plus the trade row commit as one storage transaction, or not at all.
func (c *Coordinator) BuyEnergy(ctx context.Context, params BuyParams) (*models.Trade, error) {
	if !params.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	listing, err := c.store.GetListing(ctx, params.ListingId)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.acquire(params.ListingId, params.BuyerId, listing.SellerId)
	listing, buyer, totalCost, err := c.validatePurchase(ctx, params)
	if err != nil {
		unlock()
		return nil, err
	}
	unlock()

	txRef := params.ExternalTxRef
	if txRef == "" {
		seller, err := c.store.GetUserById(ctx, listing.SellerId)
		if err != nil {
			return nil, err
		}
		txRef, err = c.settlement.EscrowRelease(ctx, buyer.WalletAddress, seller.WalletAddress, params.Amount)
		if err != nil {
			zap.L().Error("Escrow release failed, purchase not applied",
				zap.String("listing_id", params.ListingId),
				zap.String("buyer_id", params.BuyerId),
				zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
	}

	unlock = c.locks.acquire(params.ListingId, params.BuyerId, listing.SellerId)
	defer unlock()

	// Re-validate: the listing may have shrunk or closed and the buyer may
	// have spent funds while the settlement call was in flight.
	listing, _, totalCost, err = c.validatePurchase(ctx, params)
	if err != nil {
		if params.ExternalTxRef == "" {
			zap.L().Error("Escrow released but purchase preconditions no longer hold, needs manual reconciliation",
				zap.String("listing_id", params.ListingId),
				zap.String("buyer_id", params.BuyerId),
				zap.String("release_ref", txRef),
				zap.Error(err))
		}
		return nil, err
	}

	trade, err := c.store.ApplyPurchase(ctx, store.PurchaseParams{
		BuyerId:        params.BuyerId,
		SellerId:       listing.SellerId,
		ListingId:      listing.Id,
		ListingVersion: listing.Version,
		AmountKWh:      params.Amount,
		RatePerKWh:     listing.RatePerKWh,
		TotalCost:      totalCost,
		ExternalTxRef:  txRef,
		Status:         models.TradeStatusCompleted,
	})
	if err != nil {
		return nil, err
	}

	return trade, nil
}

// validatePurchase runs the purchase preconditions and returns the listing,
// the buyer and the exact total cost. Callers hold the entity locks.
func (c *Coordinator) validatePurchase(ctx context.Context, params BuyParams) (*models.Listing, *models.User, decimal.Decimal, error) {
	listing, err := c.store.GetListing(ctx, params.ListingId)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	if !listing.IsActive {
		return nil, nil, decimal.Zero, ErrListingInactive
	}
	if listing.SellerId == params.BuyerId {
		return nil, nil, decimal.Zero, ErrSelfPurchase
	}
	if params.Amount.GreaterThan(listing.AmountKWh) {
		return nil, nil, decimal.Zero, fmt.Errorf("%w: only %s kWh remaining",
			ErrInvalidAmount, listing.AmountKWh.String())
	}

	buyer, err := c.store.GetUserById(ctx, params.BuyerId)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}

	totalCost := params.Amount.Mul(listing.RatePerKWh)
	if buyer.EthBalance.LessThan(totalCost) {
		return nil, nil, decimal.Zero, fmt.Errorf("%w: have %s, need %s",
			ErrInsufficientFunds, buyer.EthBalance.String(), totalCost.String())
	}

	return listing, buyer, totalCost, nil
}

// CancelListing deactivates the requester's own listing, refunds the escrowed
// remainder on chain and credits it back to the local energy balance.
func (c *Coordinator) CancelListing(ctx context.Context, requesterId, listingId string) (*models.Listing, error) {
	listing, err := c.store.GetListing(ctx, listingId)
	if err != nil {
		return nil, err
	}
	if listing.SellerId != requesterId {
		return nil, ErrNotOwner
	}

	unlock := c.locks.acquire(listingId, requesterId)
	defer unlock()

	listing, err = c.store.GetListing(ctx, listingId)
	if err != nil {
		return nil, err
	}
	if !listing.IsActive {
		return nil, ErrListingInactive
	}

	remaining := listing.AmountKWh
	if remaining.IsPositive() {
		seller, err := c.store.GetUserById(ctx, requesterId)
		if err != nil {
			return nil, err
		}
		if _, err := c.settlement.EscrowRefund(ctx, seller.WalletAddress, remaining); err != nil {
			zap.L().Error("Escrow refund failed, listing left active",
				zap.String("listing_id", listingId), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
	}

	return c.store.CancelListing(ctx, store.CancelListingParams{
		ListingId:      listingId,
		SellerId:       requesterId,
		ListingVersion: listing.Version,
		RemainingKWh:   remaining,
	})
}

// GetActiveListings returns the open offers enriched with seller identity.
func (c *Coordinator) GetActiveListings(ctx context.Context) ([]models.EnrichedListing, error) {
	return c.store.GetActiveListings(ctx)
}

// GetTradeHistory returns the user's settled trades, newest first.
func (c *Coordinator) GetTradeHistory(ctx context.Context, userId string, limit, offset int) ([]models.EnrichedTrade, error) {
	return c.store.GetTradesByUser(ctx, userId, limit, offset)
}

// refundBestEffort tries to undo an escrow deposit whose local commit was
// abandoned. The failure is logged for operator reconciliation, never
// surfaced: the caller is already reporting the original error.
func (c *Coordinator) refundBestEffort(sellerWallet string, amountKWh decimal.Decimal, depositRef string) {
	if _, err := c.settlement.EscrowRefund(context.Background(), sellerWallet, amountKWh); err != nil {
		zap.L().Error("Orphaned escrow deposit needs manual reconciliation",
			zap.String("seller_wallet", sellerWallet),
			zap.String("amount_kwh", amountKWh.String()),
			zap.String("deposit_ref", depositRef),
			zap.Error(err))
	}
}
