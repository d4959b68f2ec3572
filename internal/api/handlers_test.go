package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gridmarket-go/internal/auth"
	"gridmarket-go/internal/chain"
	"gridmarket-go/internal/database"
	"gridmarket-go/internal/ledger"
	"gridmarket-go/internal/models"
	"gridmarket-go/internal/siwe"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	testDomain  = "localhost:8080"
	testOrigin  = "http://localhost:8080"
	testChainId = int64(31337)
)

type apiTestEnv struct {
	engine     *gin.Engine
	store      *database.Service
	settlement *chain.SimulatedClient
}

func setupAPITestEnv(t *testing.T) *apiTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "api.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
		PingTimeout:     5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to initialize test store: %v", err)
	}
	t.Cleanup(store.Close)

	settlement := chain.NewSimulatedClient()
	sessions := auth.NewManager(store, time.Hour, false)
	challenges := auth.NewChallengeStore()
	verifier := siwe.NewVerifier(siwe.Expected{
		Domain:  testDomain,
		URI:     testOrigin,
		ChainId: testChainId,
	}, 10*time.Minute)
	reconciler := ledger.NewReconciler(store, settlement)
	authService := auth.NewService(store, settlement, reconciler, sessions, challenges, verifier, 1000)
	coordinator := ledger.NewCoordinator(store, settlement)

	handler := NewHandler(authService, coordinator, reconciler, store)
	return &apiTestEnv{
		engine:     SetupRouter(handler),
		store:      store,
		settlement: settlement,
	}
}

func (e *apiTestEnv) do(t *testing.T, method, path, cookie string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", auth.CookieName+"="+cookie)
	}

	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func cookieOf(rec *httptest.ResponseRecorder) string {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c.Value
		}
	}
	return ""
}

// login drives the full challenge-response flow and returns the authenticated
// session cookie and the user's wallet address.
func (e *apiTestEnv) login(t *testing.T, key *ecdsa.PrivateKey) (string, string) {
	t.Helper()

	nonceRec := e.do(t, http.MethodGet, "/api/auth/nonce", "", nil)
	if nonceRec.Code != http.StatusOK {
		t.Fatalf("nonce failed: %d %s", nonceRec.Code, nonceRec.Body.String())
	}
	var nonceResp models.NonceResponse
	if err := json.Unmarshal(nonceRec.Body.Bytes(), &nonceResp); err != nil {
		t.Fatalf("Failed to decode nonce response: %v", err)
	}

	msg := &siwe.Message{
		Domain:    testDomain,
		Address:   crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Statement: "Sign in to the energy marketplace",
		URI:       testOrigin,
		Version:   "1",
		ChainId:   testChainId,
		Nonce:     nonceResp.Nonce,
		IssuedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	raw := msg.String()
	envelope := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(raw), raw)
	sig, err := crypto.Sign(crypto.Keccak256([]byte(envelope)), key)
	if err != nil {
		t.Fatalf("Failed to sign message: %v", err)
	}
	sig[64] += 27

	verifyRec := e.do(t, http.MethodPost, "/api/auth/verify", cookieOf(nonceRec),
		models.VerifyRequest{Message: raw, Signature: hexutil.Encode(sig)})
	if verifyRec.Code != http.StatusOK {
		t.Fatalf("verify failed: %d %s", verifyRec.Code, verifyRec.Body.String())
	}

	return cookieOf(verifyRec), strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func mustGenerateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return key
}

func TestHealth(t *testing.T) {
	env := setupAPITestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from health, got %d", rec.Code)
	}
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	env := setupAPITestEnv(t)

	cases := []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodGet, "/api/auth/me", nil},
		{http.MethodPost, "/api/listings", models.CreateListingRequest{
			AmountKWh: decimal.NewFromInt(10), RatePerKWh: decimal.RequireFromString("0.001")}},
		{http.MethodDelete, "/api/listings/some-id", nil},
		{http.MethodPost, "/api/transactions/buy", models.BuyRequest{
			ListingId: "some-id", Amount: decimal.NewFromInt(10)}},
		{http.MethodGet, "/api/transactions", nil},
	}
	for _, tc := range cases {
		rec := env.do(t, tc.method, tc.path, "", tc.body)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestListingsArePublic(t *testing.T) {
	env := setupAPITestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/listings", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from public listings, got %d", rec.Code)
	}
}

func TestMarketFlow_EndToEnd(t *testing.T) {
	env := setupAPITestEnv(t)

	sellerCookie, sellerWallet := env.login(t, mustGenerateKey(t))
	buyerCookie, _ := env.login(t, mustGenerateKey(t))

	// The buyer needs eth; in the simulated market that comes from the chain
	// via reconciliation.
	buyer, err := env.store.GetUserByWallet(context.Background(), walletOfCookie(t, env, buyerCookie))
	if err != nil {
		t.Fatalf("Failed to load buyer: %v", err)
	}
	if err := env.store.SetUserBalances(context.Background(), buyer.Id,
		decimal.NewFromInt(1), buyer.EnergyBalance); err != nil {
		t.Fatalf("Failed to fund buyer: %v", err)
	}

	// Seller lists 200 kWh at 0.001 eth/kWh.
	createRec := env.do(t, http.MethodPost, "/api/listings", sellerCookie,
		models.CreateListingRequest{AmountKWh: decimal.NewFromInt(200), RatePerKWh: decimal.RequireFromString("0.001")})
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create listing failed: %d %s", createRec.Code, createRec.Body.String())
	}
	var listing models.ListingView
	if err := json.Unmarshal(createRec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("Failed to decode listing: %v", err)
	}
	if listing.TotalValue.String() != "0.2" {
		t.Errorf("Expected total value 0.2, got %s", listing.TotalValue.String())
	}

	// It shows up in the public book with the seller's wallet.
	listRec := env.do(t, http.MethodGet, "/api/listings", "", nil)
	var book struct {
		Listings []models.EnrichedListing `json:"listings"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &book); err != nil {
		t.Fatalf("Failed to decode listings: %v", err)
	}
	if len(book.Listings) != 1 || book.Listings[0].SellerWallet != sellerWallet {
		t.Fatalf("Expected the listing in the public book, got %+v", book.Listings)
	}

	// Buyer purchases 50 kWh.
	buyRec := env.do(t, http.MethodPost, "/api/transactions/buy", buyerCookie,
		models.BuyRequest{ListingId: listing.Id, Amount: decimal.NewFromInt(50)})
	if buyRec.Code != http.StatusCreated {
		t.Fatalf("buy failed: %d %s", buyRec.Code, buyRec.Body.String())
	}
	var trade models.TradeView
	if err := json.Unmarshal(buyRec.Body.Bytes(), &trade); err != nil {
		t.Fatalf("Failed to decode trade: %v", err)
	}
	if trade.TotalCost.String() != "0.05" {
		t.Errorf("Expected trade cost 0.05, got %s", trade.TotalCost.String())
	}

	// Both sides see the trade in their history.
	for _, cookie := range []string{buyerCookie, sellerCookie} {
		histRec := env.do(t, http.MethodGet, "/api/transactions", cookie, nil)
		if histRec.Code != http.StatusOK {
			t.Fatalf("transactions failed: %d", histRec.Code)
		}
		var hist struct {
			Transactions []models.EnrichedTrade `json:"transactions"`
		}
		if err := json.Unmarshal(histRec.Body.Bytes(), &hist); err != nil {
			t.Fatalf("Failed to decode history: %v", err)
		}
		if len(hist.Transactions) != 1 {
			t.Errorf("Expected 1 trade in history, got %d", len(hist.Transactions))
		}
	}

	// Buying from your own listing is rejected.
	selfRec := env.do(t, http.MethodPost, "/api/transactions/buy", sellerCookie,
		models.BuyRequest{ListingId: listing.Id, Amount: decimal.NewFromInt(10)})
	if selfRec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for self purchase, got %d", selfRec.Code)
	}

	// Only the owner can cancel.
	foreignCancel := env.do(t, http.MethodDelete, "/api/listings/"+listing.Id, buyerCookie, nil)
	if foreignCancel.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for foreign cancel, got %d", foreignCancel.Code)
	}
	ownCancel := env.do(t, http.MethodDelete, "/api/listings/"+listing.Id, sellerCookie, nil)
	if ownCancel.Code != http.StatusOK {
		t.Errorf("Expected 200 for owner cancel, got %d: %s", ownCancel.Code, ownCancel.Body.String())
	}
}

func TestGetUserByWallet(t *testing.T) {
	env := setupAPITestEnv(t)

	cookie, wallet := env.login(t, mustGenerateKey(t))

	if rec := env.do(t, http.MethodGet, "/api/users/"+wallet, "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a session, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/users/"+wallet, cookie, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var view models.UserView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("Failed to decode user view: %v", err)
	}
	if view.WalletAddress != wallet {
		t.Errorf("Expected wallet %s, got %s", wallet, view.WalletAddress)
	}

	missing := env.do(t, http.MethodGet, "/api/users/0xdead000000000000000000000000000000000000", cookie, nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown wallet, got %d", missing.Code)
	}
}

func TestBuy_UnknownListing(t *testing.T) {
	env := setupAPITestEnv(t)

	cookie, _ := env.login(t, mustGenerateKey(t))
	rec := env.do(t, http.MethodPost, "/api/transactions/buy", cookie,
		models.BuyRequest{ListingId: "no-such-listing", Amount: decimal.NewFromInt(10)})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown listing, got %d", rec.Code)
	}
}

// walletOfCookie resolves the wallet bound to a session cookie via /me.
func walletOfCookie(t *testing.T, env *apiTestEnv, cookie string) string {
	t.Helper()
	rec := env.do(t, http.MethodGet, "/api/auth/me", cookie, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me failed: %d", rec.Code)
	}
	var view models.UserView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("Failed to decode user view: %v", err)
	}
	return view.WalletAddress
}
