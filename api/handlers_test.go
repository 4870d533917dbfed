package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubhouse/points-engine/api"
	"github.com/clubhouse/points-engine/auth"
	"github.com/clubhouse/points-engine/club"
	"github.com/clubhouse/points-engine/config"
	"github.com/clubhouse/points-engine/ledger"
	"github.com/clubhouse/points-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router http.Handler
	engine *club.Engine
	store  *sqlite.Store
	tokens *auth.Manager
}

func newTestServer(t *testing.T) *testServer {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hasher := &auth.BcryptHasher{Cost: 4}
	tokens := auth.NewManager("test-secret", time.Hour)
	engine := club.NewEngine(store, hasher, nil, nil)

	require.NoError(t, api.Bootstrap(context.Background(), store, hasher, config.AdminSeed{
		Name:     "Admin",
		Email:    "admin@club.test",
		Password: "admin",
	}, nil))

	handler := api.NewHandler(engine, tokens, nil)
	return &testServer{
		router: api.NewRouter(handler, tokens, nil),
		engine: engine,
		store:  store,
		tokens: tokens,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := ts.do(t, "POST", "/api/auth/login", "", api.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, "login failed: %s", rec.Body.String())
	return decode[api.LoginResponse](t, rec).Token
}

var memberSeq int

func (ts *testServer) createMember(t *testing.T, adminToken, name string, openingPoints float64) api.MemberDTO {
	t.Helper()
	memberSeq++
	rec := ts.do(t, "POST", "/api/members", adminToken, api.CreateMemberRequest{
		Name:          name,
		Email:         name + "@club.test",
		Password:      "secret",
		MemberNumber:  fmt.Sprintf("SOC%06d", 100+memberSeq),
		OpeningPoints: openingPoints,
	})
	require.Equal(t, http.StatusCreated, rec.Code, "create member: %s", rec.Body.String())
	return decode[api.MemberDTO](t, rec)
}

func (ts *testServer) createProduct(t *testing.T, adminToken, name string, price float64, stock int, category string) api.ProductDTO {
	t.Helper()
	rec := ts.do(t, "POST", "/api/products", adminToken, api.CreateProductRequest{
		Name:        name,
		PointsPrice: price,
		Stock:       stock,
		Category:    category,
	})
	require.Equal(t, http.StatusCreated, rec.Code, "create product: %s", rec.Body.String())
	return decode[api.ProductDTO](t, rec)
}

// =============================================================================
// AUTH
// =============================================================================

func TestLogin_BadCredentials_401(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, "POST", "/api/auth/login", "", api.LoginRequest{
		Email: "admin@club.test", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoute_NoToken_401(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, "GET", "/api/members/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoute_MemberToken_403(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@club.test", "admin")
	ts.createMember(t, adminToken, "carmen", 0)
	memberToken := ts.login(t, "carmen@club.test", "secret")

	rec := ts.do(t, "GET", "/api/members", memberToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, "POST", "/api/purchases", memberToken, api.RecordPurchaseRequest{
		MemberID: "x", EuroAmount: 10, Employee: "e", Product: "p"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// CATALOG VISIBILITY
// =============================================================================

func TestCatalog_AnonymousSeesOnlyPublic(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@club.test", "admin")
	ts.createProduct(t, adminToken, "Polo shirt", 6, 3, "public")
	membersOnly := ts.createProduct(t, adminToken, "Wine tasting", 15, 2, "members")

	rec := ts.do(t, "GET", "/api/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products := decode[[]api.ProductDTO](t, rec)
	require.Len(t, products, 1)
	assert.Equal(t, "Polo shirt", products[0].Name)

	// Members-only detail hidden from anonymous callers
	rec = ts.do(t, "GET", "/api/products/"+membersOnly.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Logged-in member sees everything
	ts.createMember(t, adminToken, "carmen", 0)
	memberToken := ts.login(t, "carmen@club.test", "secret")
	rec = ts.do(t, "GET", "/api/products", memberToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.ProductDTO](t, rec), 2)
}

// =============================================================================
// PURCHASES & REDEMPTIONS OVER HTTP
// =============================================================================

func TestRecordPurchase_AwardsPoints(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@club.test", "admin")
	member := ts.createMember(t, adminToken, "carmen", 0)

	rec := ts.do(t, "POST", "/api/purchases", adminToken, api.RecordPurchaseRequest{
		MemberID:   member.ID,
		EuroAmount: 47.00,
		Employee:   "Marta",
		Product:    "Dinner menu",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[api.PurchaseResponseDTO](t, rec)
	assert.InDelta(t, 4.70, result.PointsAwarded, 1e-9)
	assert.InDelta(t, 4.70, result.NewBalance, 1e-9)
}

func TestRedemptionFlow_OverHTTP(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@club.test", "admin")
	ts.createMember(t, adminToken, "carmen", 10)
	product := ts.createProduct(t, adminToken, "Polo shirt", 6, 1, "public")
	memberToken := ts.login(t, "carmen@club.test", "secret")

	// Member requests
	rec := ts.do(t, "POST", "/api/redemptions", memberToken,
		api.RequestRedemptionRequest{ProductID: product.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	redemption := decode[api.RedemptionDTO](t, rec)
	assert.Equal(t, "pending", redemption.State)

	// Admin sees the queue with display fields
	rec = ts.do(t, "GET", "/api/redemptions/pending", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queue := decode[[]api.RedemptionDTO](t, rec)
	require.Len(t, queue, 1)
	assert.Equal(t, "carmen", queue[0].MemberName)
	assert.Equal(t, "Polo shirt", queue[0].ProductName)

	// Approve
	rec = ts.do(t, "POST", "/api/redemptions/"+redemption.ID+"/approve", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "delivered", decode[api.RedemptionDTO](t, rec).State)

	// Second approval of the same request is a 404
	rec = ts.do(t, "POST", "/api/redemptions/"+redemption.ID+"/approve", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Member's balance and history reflect the debit
	rec = ts.do(t, "GET", "/api/members/me", memberToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 4.0, decode[api.MemberDTO](t, rec).Points, 1e-9)

	rec = ts.do(t, "GET", "/api/members/me/movements", memberToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	movements := decode[[]api.MovementDTO](t, rec)
	require.Len(t, movements, 2)
	assert.Equal(t, string(ledger.ReasonRedemption), movements[0].Reason)
}

func TestRequestRedemption_SoldOut_409(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@club.test", "admin")
	ts.createMember(t, adminToken, "carmen", 10)
	product := ts.createProduct(t, adminToken, "Glass set", 3, 0, "public")
	memberToken := ts.login(t, "carmen@club.test", "secret")

	rec := ts.do(t, "POST", "/api/redemptions", memberToken,
		api.RequestRedemptionRequest{ProductID: product.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRejectRedemption_WithComment(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@club.test", "admin")
	ts.createMember(t, adminToken, "carmen", 10)
	product := ts.createProduct(t, adminToken, "Polo shirt", 6, 1, "public")
	memberToken := ts.login(t, "carmen@club.test", "secret")

	rec := ts.do(t, "POST", "/api/redemptions", memberToken,
		api.RequestRedemptionRequest{ProductID: product.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	redemption := decode[api.RedemptionDTO](t, rec)

	rec = ts.do(t, "POST", "/api/redemptions/"+redemption.ID+"/reject", adminToken,
		api.RejectRedemptionRequest{Comment: "picked up in person"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rejected := decode[api.RedemptionDTO](t, rec)
	assert.Equal(t, "rejected", rejected.State)
	assert.Equal(t, "picked up in person", rejected.AdminComment)

	// Balance untouched
	rec = ts.do(t, "GET", "/api/members/me", memberToken, nil)
	assert.InDelta(t, 10.0, decode[api.MemberDTO](t, rec).Points, 1e-9)
}

// =============================================================================
// PRE-REGISTRATION OVER HTTP
// =============================================================================

func TestPreRegistrationFlow_OverHTTP(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@club.test", "admin")

	rec := ts.do(t, "POST", "/api/auth/register", "", api.RegisterRequest{
		Name: "Pilar Navarro", Email: "pilar@club.test"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	app := decode[api.PreRegistrationDTO](t, rec)

	// Duplicate application conflicts
	rec = ts.do(t, "POST", "/api/auth/register", "", api.RegisterRequest{
		Name: "Pilar Again", Email: "pilar@club.test"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, "GET", "/api/preregistrations/pending", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.PreRegistrationDTO](t, rec), 1)

	rec = ts.do(t, "POST", "/api/preregistrations/"+app.ID+"/approve", adminToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	approval := decode[api.ApprovalDTO](t, rec)

	// The new member can log in with the minted password
	token := ts.login(t, "pilar@club.test", approval.TempPassword)
	rec = ts.do(t, "GET", "/api/members/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, approval.MemberNumber, decode[api.MemberDTO](t, rec).MemberNumber)
}

// =============================================================================
// VALIDATION & DEMO DATA
// =============================================================================

func TestCreateProduct_InvalidBody_400(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, "admin@club.test", "admin")

	rec := ts.do(t, "POST", "/api/products", adminToken, api.CreateProductRequest{
		Name: "", PointsPrice: 6, Stock: 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "POST", "/api/products", adminToken, api.CreateProductRequest{
		Name: "Polo", PointsPrice: -1, Stock: 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadDemo_ProducesConsistentState(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, api.LoadDemo(context.Background(), ts.engine, ts.store, "admin@club.test"))

	adminToken := ts.login(t, "admin@club.test", "admin")
	rec := ts.do(t, "GET", "/api/redemptions/pending", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.RedemptionDTO](t, rec), 1)

	// Demo balances are backed by the ledger
	rec = ts.do(t, "GET", "/api/members", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, m := range decode[[]api.MemberDTO](t, rec) {
		movements, err := ts.store.Movements(context.Background(), ledger.MemberID(m.ID), nil)
		require.NoError(t, err)
		sum := ledger.SumForYear(movements, time.Now().Year())
		assert.InDelta(t, m.Points, sum.Float64(), 1e-9, "member %s", m.Email)
	}
}
