package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserView is the user payload returned by the API. Stale reports whether the
// balance fields could not be refreshed from the chain on this request.
type UserView struct {
	Id            string          `json:"id"`
	WalletAddress string          `json:"wallet_address"`
	EnergyBalance decimal.Decimal `json:"energy_balance"`
	EthBalance    decimal.Decimal `json:"eth_balance"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
	IsNewUser     bool            `json:"is_new_user"`
	Stale         bool            `json:"stale,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewUserView projects a stored user into its API shape.
func NewUserView(user *User, stale bool) UserView {
	return UserView{
		Id:            user.Id,
		WalletAddress: user.WalletAddress,
		EnergyBalance: user.EnergyBalance,
		EthBalance:    user.EthBalance,
		TotalEarnings: user.TotalEarnings,
		IsNewUser:     user.IsNewUser,
		Stale:         stale,
		CreatedAt:     user.CreatedAt,
	}
}

// ListingView is the API shape of a stored listing.
type ListingView struct {
	Id            string          `json:"id"`
	SellerId      string          `json:"seller_id"`
	AmountKWh     decimal.Decimal `json:"amount_kwh"`
	RatePerKWh    decimal.Decimal `json:"rate_per_kwh"`
	TotalValue    decimal.Decimal `json:"total_value"`
	IsActive      bool            `json:"is_active"`
	ExternalTxRef string          `json:"external_tx_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewListingView(listing *Listing) ListingView {
	return ListingView{
		Id:            listing.Id,
		SellerId:      listing.SellerId,
		AmountKWh:     listing.AmountKWh,
		RatePerKWh:    listing.RatePerKWh,
		TotalValue:    listing.TotalValue,
		IsActive:      listing.IsActive,
		ExternalTxRef: listing.ExternalTxRef,
		CreatedAt:     listing.CreatedAt,
	}
}

// TradeView is the API shape of a stored trade.
type TradeView struct {
	Id            string          `json:"id"`
	BuyerId       string          `json:"buyer_id"`
	SellerId      string          `json:"seller_id"`
	ListingId     string          `json:"listing_id"`
	AmountKWh     decimal.Decimal `json:"amount_kwh"`
	RatePerKWh    decimal.Decimal `json:"rate_per_kwh"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Kind          string          `json:"kind"`
	ExternalTxRef string          `json:"external_tx_ref,omitempty"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewTradeView(trade *Trade) TradeView {
	return TradeView{
		Id:            trade.Id,
		BuyerId:       trade.BuyerId,
		SellerId:      trade.SellerId,
		ListingId:     trade.ListingId,
		AmountKWh:     trade.AmountKWh,
		RatePerKWh:    trade.RatePerKWh,
		TotalCost:     trade.TotalCost,
		Kind:          trade.Kind,
		ExternalTxRef: trade.ExternalTxRef,
		Status:        trade.Status,
		CreatedAt:     trade.CreatedAt,
	}
}

// EnrichedListing is the read-side join of a listing with its seller's
// identity. Distinct from the stored Listing on purpose: API consumers never
// see storage-only fields like Version.
type EnrichedListing struct {
	Id            string          `json:"id"`
	SellerId      string          `json:"seller_id"`
	SellerWallet  string          `json:"seller_wallet"`
	AmountKWh     decimal.Decimal `json:"amount_kwh"`
	RatePerKWh    decimal.Decimal `json:"rate_per_kwh"`
	TotalValue    decimal.Decimal `json:"total_value"`
	IsActive      bool            `json:"is_active"`
	ExternalTxRef string          `json:"external_tx_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// EnrichedTrade is the read-side join of a trade with both counterparties.
type EnrichedTrade struct {
	Id            string          `json:"id"`
	ListingId     string          `json:"listing_id"`
	BuyerWallet   string          `json:"buyer_wallet"`
	SellerWallet  string          `json:"seller_wallet"`
	AmountKWh     decimal.Decimal `json:"amount_kwh"`
	RatePerKWh    decimal.Decimal `json:"rate_per_kwh"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Kind          string          `json:"kind"`
	ExternalTxRef string          `json:"external_tx_ref,omitempty"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// VerifyRequest carries the signed sign-in message and its signature.
type VerifyRequest struct {
	Message   string `json:"message" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// CreateListingRequest creates a sell offer. The seller is taken from the
// session, never from the body. ExternalTxRef, when present, is a
// client-confirmed escrow transaction being replayed idempotently.
type CreateListingRequest struct {
	AmountKWh     decimal.Decimal `json:"amount_kwh" binding:"required"`
	RatePerKWh    decimal.Decimal `json:"rate_per_kwh" binding:"required"`
	ExternalTxRef string          `json:"external_tx_ref"`
}

// BuyRequest purchases part of a listing. The buyer comes from the session.
type BuyRequest struct {
	ListingId     string          `json:"listing_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	ExternalTxRef string          `json:"external_tx_ref"`
}

// NonceResponse is returned by the challenge endpoint.
type NonceResponse struct {
	Nonce string `json:"nonce"`
}
