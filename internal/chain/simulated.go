package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *SimulatedClient must satisfy SettlementClient.
var _ SettlementClient = (*SimulatedClient)(nil)

// Grant records one simulated GrantEnergy call.
type Grant struct {
	Wallet    string
	AmountKWh decimal.Decimal
}

// SimulatedClient settles against in-memory state. Used when no chain is
// configured and by tests, which can inject failures and preload balances.
type SimulatedClient struct {
	mu      sync.Mutex
	failure error
	eth     map[string]decimal.Decimal
	energy  map[string]decimal.Decimal
	grants  []Grant
}

func NewSimulatedClient() *SimulatedClient {
	return &SimulatedClient{
		eth:    make(map[string]decimal.Decimal),
		energy: make(map[string]decimal.Decimal),
	}
}

// FailWith makes every subsequent call fail with err until cleared with nil.
func (c *SimulatedClient) FailWith(err error) {
	c.mu.Lock()
	c.failure = err
	c.mu.Unlock()
}

// SetBalances preloads the balances Balances will report for a wallet.
func (c *SimulatedClient) SetBalances(wallet string, eth, energy decimal.Decimal) {
	c.mu.Lock()
	c.eth[wallet] = eth
	c.energy[wallet] = energy
	c.mu.Unlock()
}

// Grants returns a copy of the recorded GrantEnergy calls.
func (c *SimulatedClient) Grants() []Grant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Grant(nil), c.grants...)
}

func (c *SimulatedClient) Mode() string {
	return ModeSimulated
}

func (c *SimulatedClient) ref(op string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, c.failure)
	}
	ref := "sim-" + uuid.New().String()
	zap.L().Debug("Simulated settlement", zap.String("op", op), zap.String("ref", ref))
	return ref, nil
}

func (c *SimulatedClient) EscrowDeposit(_ context.Context, sellerWallet string, amountKWh decimal.Decimal) (string, error) {
	return c.ref("escrow_deposit")
}

func (c *SimulatedClient) EscrowRelease(_ context.Context, buyerWallet, sellerWallet string, amountKWh decimal.Decimal) (string, error) {
	return c.ref("escrow_release")
}

func (c *SimulatedClient) EscrowRefund(_ context.Context, sellerWallet string, amountKWh decimal.Decimal) (string, error) {
	return c.ref("escrow_refund")
}

func (c *SimulatedClient) GrantEnergy(_ context.Context, wallet string, amountKWh decimal.Decimal) (string, error) {
	c.mu.Lock()
	if c.failure != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %v", ErrUnavailable, c.failure)
	}
	c.grants = append(c.grants, Grant{Wallet: wallet, AmountKWh: amountKWh})
	c.energy[wallet] = c.energy[wallet].Add(amountKWh)
	c.mu.Unlock()
	return "sim-" + uuid.New().String(), nil
}

func (c *SimulatedClient) Balances(_ context.Context, wallet string) (decimal.Decimal, decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, c.failure)
	}
	return c.eth[wallet], c.energy[wallet], nil
}
