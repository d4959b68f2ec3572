package api

import (
	"errors"
	"net/http"

	"gridmarket-go/internal/auth"
	"gridmarket-go/internal/ledger"
	"gridmarket-go/internal/siwe"
	"gridmarket-go/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps a service error onto a status code and a stable message.
// Internal failures are logged in full but reported generically; settlement
// and storage details never leak to clients.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, siwe.ErrMalformedMessage),
		errors.Is(err, siwe.ErrMissingField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, siwe.ErrDomainMismatch),
		errors.Is(err, siwe.ErrURIMismatch),
		errors.Is(err, siwe.ErrChainMismatch),
		errors.Is(err, siwe.ErrNonceMismatch),
		errors.Is(err, siwe.ErrMessageExpired),
		errors.Is(err, siwe.ErrSignatureInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})

	case errors.Is(err, auth.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})

	case errors.Is(err, ledger.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})

	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})

	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInsufficientEnergy),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrListingInactive),
		errors.Is(err, ledger.ErrSelfPurchase):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, store.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": "resource was modified concurrently, retry"})

	case errors.Is(err, ledger.ErrSettlementFailed):
		zap.L().Error("Settlement failure surfaced to client", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settlement failed, no changes were applied"})

	default:
		zap.L().Error("Unhandled request error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
