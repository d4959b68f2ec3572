// Package chain talks to the on-chain escrow contract: the authoritative
// source for balances and the settlement leg of every trade. The backend is
// chosen once at construction (live RPC or simulated); call sites never
// branch on configuration.
package chain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable wraps every failure of the settlement backend: RPC errors,
// timeouts, rejected transactions. Callers treat them all identically and
// never fabricate a settlement reference in their place.
var ErrUnavailable = errors.New("settlement backend unavailable")

// Backend modes.
const (
	ModeLive      = "live"
	ModeSimulated = "simulated"
)

// SettlementClient is the escrow contract's external call surface. Methods
// returning a string return the settlement reference (transaction hash) for
// the ledger to record.
type SettlementClient interface {
	// EscrowDeposit moves amountKWh of the seller's energy into contract
	// custody when a listing is created.
	EscrowDeposit(ctx context.Context, sellerWallet string, amountKWh decimal.Decimal) (string, error)

	// EscrowRelease transfers amountKWh from custody to the buyer when a
	// purchase settles.
	EscrowRelease(ctx context.Context, buyerWallet, sellerWallet string, amountKWh decimal.Decimal) (string, error)

	// EscrowRefund returns the unsold remainder to the seller on cancellation.
	EscrowRefund(ctx context.Context, sellerWallet string, amountKWh decimal.Decimal) (string, error)

	// GrantEnergy mints the sign-up grant for a new wallet. Advisory: the
	// off-chain ledger has already credited the grant.
	GrantEnergy(ctx context.Context, wallet string, amountKWh decimal.Decimal) (string, error)

	// Balances reads the wallet's native eth balance and contract energy
	// balance.
	Balances(ctx context.Context, wallet string) (eth, energy decimal.Decimal, err error)

	Mode() string
}
