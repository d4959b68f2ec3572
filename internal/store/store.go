package store

import (
	"context"
	"errors"

	"gridmarket-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound               = errors.New("record not found")
	ErrDuplicateWallet        = errors.New("wallet address already registered")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrListingClosed          = errors.New("listing is no longer active")
)

// CreateListingParams debits the seller's energy balance and inserts the
// listing in one storage transaction (escrow-debit-on-create model).
type CreateListingParams struct {
	SellerId      string
	AmountKWh     decimal.Decimal
	RatePerKWh    decimal.Decimal
	ExternalTxRef string
}

// PurchaseParams applies one settled purchase as a single storage
// transaction: buyer pays and receives energy, seller is paid, the listing
// shrinks, and an immutable trade row is appended.
// ListingVersion is the version observed after the final pre-commit
// validation; a mismatch at commit time means another writer interleaved.
type PurchaseParams struct {
	BuyerId        string
	SellerId       string
	ListingId      string
	ListingVersion int64
	AmountKWh      decimal.Decimal
	RatePerKWh     decimal.Decimal
	TotalCost      decimal.Decimal
	ExternalTxRef  string
	Status         string
}

// CancelListingParams deactivates a listing, zeroes its remaining amount and
// credits that amount back to the seller, atomically.
type CancelListingParams struct {
	ListingId      string
	SellerId       string
	ListingVersion int64
	RemainingKWh   decimal.Decimal
}

// MarketStore defines the contract the off-chain ledger backend must satisfy.
type MarketStore interface {
	// --- Users ---
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByWallet(ctx context.Context, walletAddress string) (*models.User, error)
	CreateUser(ctx context.Context, walletAddress string, energyGrant decimal.Decimal) (*models.User, error)
	SetUserBalances(ctx context.Context, userId string, ethBalance, energyBalance decimal.Decimal) error

	// --- Listings ---
	GetListing(ctx context.Context, listingId string) (*models.Listing, error)
	GetActiveListings(ctx context.Context) ([]models.EnrichedListing, error)
	CreateListing(ctx context.Context, params CreateListingParams) (*models.Listing, error)
	ApplyPurchase(ctx context.Context, params PurchaseParams) (*models.Trade, error)
	CancelListing(ctx context.Context, params CancelListingParams) (*models.Listing, error)

	// --- Trades ---
	GetTradesByUser(ctx context.Context, userId string, limit, offset int) ([]models.EnrichedTrade, error)

	// --- Sessions ---
	GetSession(ctx context.Context, sid string) (*models.SessionRecord, error)
	PutSession(ctx context.Context, rec models.SessionRecord) error
	DeleteSession(ctx context.Context, sid string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
