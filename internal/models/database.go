package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade kinds.
const (
	TradeKindBuy  = "buy"
	TradeKindSell = "sell"
	TradeKindDemo = "demo"
)

// Trade statuses.
const (
	TradeStatusPending   = "pending"
	TradeStatusCompleted = "completed"
	TradeStatusFailed    = "failed"
)

// User represents a market participant. One row per wallet address; the
// address is stored lowercased and is the identity the session binds to.
type User struct {
	Id            string          `db:"id"`
	WalletAddress string          `db:"wallet_address"`
	EnergyBalance decimal.Decimal `db:"energy_balance"`
	EthBalance    decimal.Decimal `db:"eth_balance"`
	TotalEarnings decimal.Decimal `db:"total_earnings"`
	IsNewUser     bool            `db:"is_new_user"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Listing represents an open sell offer. AmountKWh is the remaining unsold
// amount; once IsActive flips to false the row is terminal and never mutated
// again. Version backs the optimistic commit check on the hot row.
type Listing struct {
	Id                string          `db:"id"`
	SellerId          string          `db:"seller_id"`
	AmountKWh         decimal.Decimal `db:"amount_kwh"`
	RatePerKWh        decimal.Decimal `db:"rate_per_kwh"`
	TotalValue        decimal.Decimal `db:"total_value"`
	IsActive          bool            `db:"is_active"`
	ExternalTxRef     string          `db:"external_tx_ref"`
	ExternalListingId string          `db:"external_listing_id"`
	Version           int64           `db:"version"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Trade is the immutable record of one settlement event. Created once per
// purchase, never updated or deleted.
type Trade struct {
	Id            string          `db:"id"`
	BuyerId       string          `db:"buyer_id"`
	SellerId      string          `db:"seller_id"`
	ListingId     string          `db:"listing_id"`
	AmountKWh     decimal.Decimal `db:"amount_kwh"`
	RatePerKWh    decimal.Decimal `db:"rate_per_kwh"`
	TotalCost     decimal.Decimal `db:"total_cost"`
	Kind          string          `db:"kind"`
	ExternalTxRef string          `db:"external_tx_ref"`
	Status        string          `db:"status"`
	CreatedAt     time.Time       `db:"created_at"`
}

// SessionData is the payload serialized into a session row. Empty until the
// sign-in flow binds a wallet.
type SessionData struct {
	UserId        string `json:"user_id,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// SessionRecord is a persisted server-side session.
type SessionRecord struct {
	Sid       string    `db:"sid"`
	Data      string    `db:"data"`
	ExpiresAt time.Time `db:"expires_at"`
}
