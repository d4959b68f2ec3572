// Package api exposes the market over HTTP. Handlers stay thin: bind, call
// the service, map the error. All business rules live in the ledger and auth
// packages.
package api

import (
	"net/http"
	"strconv"

	"gridmarket-go/internal/auth"
	"gridmarket-go/internal/ledger"
	"gridmarket-go/internal/models"
	"gridmarket-go/internal/store"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	auth       *auth.Service
	market     *ledger.Coordinator
	reconciler *ledger.Reconciler
	store      store.MarketStore
}

func NewHandler(authSvc *auth.Service, market *ledger.Coordinator, reconciler *ledger.Reconciler, st store.MarketStore) *Handler {
	return &Handler{
		auth:       authSvc,
		market:     market,
		reconciler: reconciler,
		store:      st,
	}
}

// GET /api/auth/nonce
func (h *Handler) GetNonce(c *gin.Context) {
	nonce, err := h.auth.IssueNonce(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NonceResponse{Nonce: nonce})
}

// POST /api/auth/verify
func (h *Handler) Verify(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message and signature are required"})
		return
	}

	user, err := h.auth.Login(c, req.Message, req.Signature)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewUserView(user, false))
}

// GET /api/auth/me
func (h *Handler) Me(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		writeError(c, err)
		return
	}

	refreshed, stale, err := h.reconciler.Refresh(c.Request.Context(), user.WalletAddress)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewUserView(refreshed, stale))
}

// POST /api/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// GET /api/listings
func (h *Handler) GetListings(c *gin.Context) {
	listings, err := h.market.GetActiveListings(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

// POST /api/listings
func (h *Handler) CreateListing(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		writeError(c, err)
		return
	}

	var req models.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_kwh and rate_per_kwh are required"})
		return
	}

	listing, err := h.market.CreateListing(c.Request.Context(), ledger.CreateListingParams{
		SellerId:      user.Id,
		AmountKWh:     req.AmountKWh,
		RatePerKWh:    req.RatePerKWh,
		ExternalTxRef: req.ExternalTxRef,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewListingView(listing))
}

// DELETE /api/listings/:id
func (h *Handler) CancelListing(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		writeError(c, err)
		return
	}

	listing, err := h.market.CancelListing(c.Request.Context(), user.Id, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewListingView(listing))
}

// POST /api/transactions/buy
func (h *Handler) BuyEnergy(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		writeError(c, err)
		return
	}

	var req models.BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing_id and amount are required"})
		return
	}

	trade, err := h.market.BuyEnergy(c.Request.Context(), ledger.BuyParams{
		BuyerId:       user.Id,
		ListingId:     req.ListingId,
		Amount:        req.Amount,
		ExternalTxRef: req.ExternalTxRef,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewTradeView(trade))
}

// GET /api/transactions
func (h *Handler) GetTransactions(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		writeError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	trades, err := h.market.GetTradeHistory(c.Request.Context(), user.Id, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": trades})
}

// GET /api/users/:walletAddress
func (h *Handler) GetUserByWallet(c *gin.Context) {
	if _, err := h.auth.CurrentUser(c); err != nil {
		writeError(c, err)
		return
	}

	user, stale, err := h.reconciler.Refresh(c.Request.Context(), c.Param("walletAddress"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewUserView(user, stale))
}

// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
