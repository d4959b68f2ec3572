// Package auth bridges a client-signed wallet message to a server-side
// session: challenge issuance, message verification and session binding.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gridmarket-go/internal/chain"
	"gridmarket-go/internal/ledger"
	"gridmarket-go/internal/models"
	"gridmarket-go/internal/siwe"
	"gridmarket-go/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNotAuthenticated is returned when an operation requires a bound session.
var ErrNotAuthenticated = errors.New("no authenticated session")

const grantTimeout = 30 * time.Second

// Service orchestrates the sign-in flow end to end and owns the session
// lifecycle around it.
type Service struct {
	store        store.MarketStore
	settlement   chain.SettlementClient
	reconciler   *ledger.Reconciler
	sessions     *Manager
	challenges   *ChallengeStore
	verifier     *siwe.Verifier
	initialGrant decimal.Decimal
}

func NewService(
	st store.MarketStore,
	settlement chain.SettlementClient,
	reconciler *ledger.Reconciler,
	sessions *Manager,
	challenges *ChallengeStore,
	verifier *siwe.Verifier,
	initialGrantKWh int64,
) *Service {
	return &Service{
		store:        st,
		settlement:   settlement,
		reconciler:   reconciler,
		sessions:     sessions,
		challenges:   challenges,
		verifier:     verifier,
		initialGrant: decimal.NewFromInt(initialGrantKWh),
	}
}

// Sessions exposes the session manager for middleware wiring.
func (s *Service) Sessions() *Manager {
	return s.sessions
}

// IssueNonce binds a fresh challenge to the caller's session, creating the
// session if needed.
func (s *Service) IssueNonce(c *gin.Context) (string, error) {
	sess, err := s.sessions.Ensure(c)
	if err != nil {
		return "", fmt.Errorf("failed to establish session: %w", err)
	}
	return s.challenges.Issue(sess.ID())
}

// Login verifies a signed message against the caller's session challenge and
// binds the recovered wallet to a regenerated session. The ordered checks
// each fail with their own siwe sentinel; the nonce is consumed at its place
// in the order, so a domain mismatch does not burn the challenge but any
// failure after that point does.
func (s *Service) Login(c *gin.Context, rawMessage, signature string) (*models.User, error) {
	sess := s.sessions.Current(c)
	if sess == nil {
		return nil, siwe.ErrNonceMismatch
	}

	msg, err := siwe.ParseMessage(rawMessage)
	if err != nil {
		return nil, err
	}

	if err := s.verifier.CheckBinding(msg); err != nil {
		return nil, err
	}

	if !s.challenges.Consume(sess.ID(), msg.Nonce) {
		return nil, siwe.ErrNonceMismatch
	}

	wallet, err := s.verifier.RecoverAddress(msg, rawMessage, signature)
	if err != nil {
		return nil, err
	}

	return s.bind(c, sess, wallet)
}

// bind looks up or creates the user for the verified wallet and writes the
// identity into a freshly regenerated session.
func (s *Service) bind(c *gin.Context, sess *Session, wallet string) (*models.User, error) {
	ctx := c.Request.Context()

	user, err := s.store.GetUserByWallet(ctx, wallet)
	switch {
	case err == nil:
		// Known wallet: refresh balances opportunistically. Stale values are
		// fine; login never depends on the chain being reachable.
		if refreshed, _, rerr := s.reconciler.Refresh(ctx, wallet); rerr == nil {
			user = refreshed
		}
	case errors.Is(err, store.ErrNotFound):
		user, err = s.store.CreateUser(ctx, wallet, s.initialGrant)
		if err != nil {
			return nil, err
		}
		s.grantAsync(user.WalletAddress)
	default:
		return nil, err
	}

	// Fresh session id before the identity is written: a pre-auth session id
	// an attacker may have planted must never become authenticated.
	if err := s.sessions.Regenerate(c, sess); err != nil {
		return nil, err
	}

	sess.Data = models.SessionData{UserId: user.Id, WalletAddress: user.WalletAddress}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	zap.L().Info("Wallet authenticated",
		zap.String("user_id", user.Id),
		zap.String("wallet", user.WalletAddress),
		zap.Bool("new_user", user.IsNewUser))

	return user, nil
}

// grantAsync mirrors the sign-up grant on chain. Advisory only: the ledger
// already credited it, so a failure is logged and the login proceeds.
func (s *Service) grantAsync(wallet string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), grantTimeout)
		defer cancel()

		if _, err := s.settlement.GrantEnergy(ctx, wallet, s.initialGrant); err != nil {
			zap.L().Warn("On-chain sign-up grant failed, ledger value stands",
				zap.String("wallet", wallet),
				zap.String("amount_kwh", s.initialGrant.String()),
				zap.Error(err))
		}
	}()
}

// CurrentUser resolves the authenticated user for the request, if any.
func (s *Service) CurrentUser(c *gin.Context) (*models.User, error) {
	sess := s.sessions.Current(c)
	if !sess.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	user, err := s.store.GetUserById(c.Request.Context(), sess.UserId())
	if errors.Is(err, store.ErrNotFound) {
		// Session points at a user row that no longer exists.
		return nil, ErrNotAuthenticated
	}
	return user, err
}

// Logout destroys the caller's session server-side.
func (s *Service) Logout(c *gin.Context) error {
	sess := s.sessions.Current(c)
	if sess == nil {
		return nil
	}
	return s.sessions.Destroy(c, sess)
}
