package ledger

import (
	"context"
	"time"

	"gridmarket-go/internal/chain"
	"gridmarket-go/internal/models"
	"gridmarket-go/internal/store"

	"go.uber.org/zap"
)

// Reconciler overwrites locally cached balance fields with the chain's view.
// Best effort by contract: when the chain is unreachable the caller gets the
// last-known local values flagged stale, never an error it has to handle.
type Reconciler struct {
	store      store.MarketStore
	settlement chain.SettlementClient
}

func NewReconciler(st store.MarketStore, settlement chain.SettlementClient) *Reconciler {
	return &Reconciler{store: st, settlement: settlement}
}

// Refresh syncs one user's eth and energy balances from the chain. Returns
// the user (refreshed or last-known) and whether the values are stale.
// Errors are returned only for local storage failures; an unreachable chain
// is not an error here.
func (r *Reconciler) Refresh(ctx context.Context, walletAddress string) (*models.User, bool, error) {
	user, err := r.store.GetUserByWallet(ctx, walletAddress)
	if err != nil {
		return nil, false, err
	}

	eth, energy, err := r.settlement.Balances(ctx, user.WalletAddress)
	if err != nil {
		zap.L().Warn("Balance refresh unavailable, serving last-known values",
			zap.String("wallet", user.WalletAddress),
			zap.Error(err))
		return user, true, nil
	}

	if err := r.store.SetUserBalances(ctx, user.Id, eth, energy); err != nil {
		return nil, false, err
	}

	user.EthBalance = eth
	user.EnergyBalance = energy

	zap.L().Debug("Balances reconciled",
		zap.String("wallet", user.WalletAddress),
		zap.String("eth", eth.String()),
		zap.String("energy", energy.String()))

	return user, false, nil
}

// RefreshAll walks every user and refreshes each, returning how many were
// refreshed and how many were left stale. Used by the operator CLI and the
// optional background sweep.
func (r *Reconciler) RefreshAll(ctx context.Context) (refreshed, stale int, err error) {
	users, err := r.store.GetUsers(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, user := range users {
		_, wasStale, err := r.Refresh(ctx, user.WalletAddress)
		if err != nil {
			zap.L().Error("Failed to refresh user",
				zap.String("user_id", user.Id), zap.Error(err))
			stale++
			continue
		}
		if wasStale {
			stale++
		} else {
			refreshed++
		}
	}

	return refreshed, stale, nil
}

// RunSweep refreshes all users on the given interval until ctx is done.
func (r *Reconciler) RunSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshed, stale, err := r.RefreshAll(ctx)
			if err != nil {
				zap.L().Error("Reconciliation sweep failed", zap.Error(err))
				continue
			}
			zap.L().Info("Reconciliation sweep completed",
				zap.Int("refreshed", refreshed),
				zap.Int("stale", stale))
		}
	}
}
