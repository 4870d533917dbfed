package club_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubhouse/points-engine/auth"
	"github.com/clubhouse/points-engine/club"
	"github.com/clubhouse/points-engine/ledger"
	"github.com/clubhouse/points-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*club.Engine, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hasher := &auth.BcryptHasher{Cost: 4} // low cost keeps tests fast
	engine := club.NewEngine(store, hasher, nil, nil)
	return engine, store
}

var nextMemberNumber int

func createMember(t *testing.T, engine *club.Engine, admin club.Principal, name string, openingPoints int) *club.Member {
	t.Helper()
	nextMemberNumber++
	m, err := engine.CreateMember(context.Background(), admin, club.CreateMemberInput{
		Name:          name,
		Email:         name + "@club.test",
		Password:      "secret",
		MemberNumber:  fmt.Sprintf("SOC%06d", nextMemberNumber),
		OpeningPoints: ledger.NewPointsFromInt(openingPoints),
	})
	require.NoError(t, err)
	return m
}

func createAdmin(t *testing.T, store *sqlite.Store) club.Principal {
	t.Helper()
	admin := club.Member{
		ID:                ledger.MemberID("admin-" + t.Name()),
		MemberNumber:      "ADM-" + t.Name(),
		Name:              "Admin",
		Email:             t.Name() + "-admin@club.test",
		PasswordHash:      "unused",
		Role:              club.RoleAdmin,
		PointsCurrentYear: ledger.Zero(),
		CreatedAt:         time.Now(),
	}
	require.NoError(t, store.InsertMember(context.Background(), admin))
	return club.Principal{ID: admin.ID, MemberNumber: admin.MemberNumber, Role: admin.Role}
}

func createProduct(t *testing.T, engine *club.Engine, admin club.Principal, name string, price, stock int) *club.Product {
	t.Helper()
	p, err := engine.CreateProduct(context.Background(), admin, club.ProductInput{
		Name:        name,
		PointsPrice: ledger.NewPointsFromInt(price),
		Stock:       stock,
	})
	require.NoError(t, err)
	return p
}

func asPrincipal(m *club.Member) club.Principal {
	return club.Principal{ID: m.ID, MemberNumber: m.MemberNumber, Role: m.Role}
}

// assertPoints compares by decimal value, since String keeps trailing zeros.
func assertPoints(t *testing.T, want float64, got ledger.Points, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, got.Equal(ledger.NewPoints(want)),
		"want %v points, got %s: %v", want, got, msgAndArgs)
}

// =============================================================================
// POINTS CONVERSION
// =============================================================================

func TestEuroToPoints_OnePointPerTenEuros(t *testing.T) {
	cases := []struct {
		euros string
		want  float64
	}{
		{"47.00", 4.70},
		{"10.00", 1},
		{"9.99", 1},      // 0.999 rounds half-up to 1.00
		{"47.05", 4.71},  // 4.705 rounds half-up to 4.71
		{"0.01", 0},      // 0.001 rounds down
		{"1234.56", 123.46},
	}
	for _, c := range cases {
		euros, err := decimal.NewFromString(c.euros)
		require.NoError(t, err)
		assertPoints(t, c.want, club.EuroToPoints(euros), "euros=%s", c.euros)
	}
}

// =============================================================================
// PHYSICAL PURCHASES
// =============================================================================

func TestRecordPhysicalPurchase_CreditsPoints(t *testing.T) {
	// GIVEN: A member with no points
	// WHEN: An admin records a 47.00€ purchase
	// THEN: The member holds 4.70 points backed by one ledger movement

	engine, store := newTestEngine(t)
	ctx := context.Background()
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "carmen", 0)

	result, err := engine.RecordPhysicalPurchase(ctx, admin, member.ID,
		decimal.NewFromFloat(47.00), "Marta", "Dinner menu")
	require.NoError(t, err)

	assertPoints(t, 4.70, result.PointsAwarded)
	assertPoints(t, 4.70, result.NewBalance)

	stored, err := store.MemberByID(ctx, member.ID)
	require.NoError(t, err)
	assertPoints(t, 4.70, stored.PointsCurrentYear)

	movements, err := store.Movements(ctx, member.ID, nil)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, ledger.ReasonPhysicalPurchase, movements[0].Reason)
	assert.Equal(t, result.PurchaseID, movements[0].PurchaseID)
	assert.Equal(t, time.Now().Year(), movements[0].Year)
}

func TestRecordPhysicalPurchase_RequiresAdmin(t *testing.T) {
	engine, store := newTestEngine(t)
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "luis", 0)

	_, err := engine.RecordPhysicalPurchase(context.Background(), asPrincipal(member),
		member.ID, decimal.NewFromFloat(20), "Marta", "Coffee")
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

func TestRecordPhysicalPurchase_RejectsNonPositiveAmount(t *testing.T) {
	engine, store := newTestEngine(t)
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "ana", 0)

	_, err := engine.RecordPhysicalPurchase(context.Background(), admin,
		member.ID, decimal.Zero, "Marta", "Coffee")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = engine.RecordPhysicalPurchase(context.Background(), admin,
		member.ID, decimal.NewFromFloat(-5), "Marta", "Coffee")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestRecordPhysicalPurchase_UnknownMember_NothingWritten(t *testing.T) {
	engine, store := newTestEngine(t)
	admin := createAdmin(t, store)

	_, err := engine.RecordPhysicalPurchase(context.Background(), admin,
		"ghost", decimal.NewFromFloat(30), "Marta", "Lunch")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	movements, err := store.Movements(context.Background(), "ghost", nil)
	require.NoError(t, err)
	assert.Empty(t, movements)
}

// =============================================================================
// REDEMPTION LIFECYCLE
// =============================================================================

func TestRedemption_FullLifecycle(t *testing.T) {
	// GIVEN: A member with 10 points and a product costing 6 with stock 3
	// WHEN: The member requests it and an admin approves
	// THEN: Balance 4, stock 2, state delivered, and a -6 movement exists

	engine, store := newTestEngine(t)
	ctx := context.Background()
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "carmen", 10)
	product := createProduct(t, engine, admin, "Polo shirt", 6, 3)

	req, err := engine.RequestRedemption(ctx, asPrincipal(member), product.ID)
	require.NoError(t, err)
	assert.Equal(t, club.RedemptionPending, req.State)
	assertPoints(t, 6, req.PointsCost)

	// Requesting reserves nothing
	stored, err := store.MemberByID(ctx, member.ID)
	require.NoError(t, err)
	assertPoints(t, 10, stored.PointsCurrentYear)

	approved, err := engine.ApproveRedemption(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, club.RedemptionDelivered, approved.State)
	require.NotNil(t, approved.DecidedAt)

	stored, err = store.MemberByID(ctx, member.ID)
	require.NoError(t, err)
	assertPoints(t, 4, stored.PointsCurrentYear)

	p, err := store.ProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)

	movements, err := store.Movements(ctx, member.ID, nil)
	require.NoError(t, err)
	require.Len(t, movements, 2) // opening balance + redemption
	assert.Equal(t, ledger.ReasonRedemption, movements[0].Reason)
	assertPoints(t, -6, movements[0].Amount)
	assert.Equal(t, req.ID, movements[0].RedemptionID)
}

func TestRequestRedemption_SoldOut_Conflict(t *testing.T) {
	engine, store := newTestEngine(t)
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "luis", 10)
	product := createProduct(t, engine, admin, "Glass set", 3, 0)

	_, err := engine.RequestRedemption(context.Background(), asPrincipal(member), product.ID)
	assert.ErrorIs(t, err, ledger.ErrConflict)
}

func TestRequestRedemption_PriceSnapshot_SurvivesPriceChange(t *testing.T) {
	// GIVEN: A pending request made when the product cost 6
	// WHEN: The admin raises the price to 60 and then approves
	// THEN: Exactly 6 points are debited

	engine, store := newTestEngine(t)
	ctx := context.Background()
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "ana", 10)
	product := createProduct(t, engine, admin, "Polo shirt", 6, 1)

	req, err := engine.RequestRedemption(ctx, asPrincipal(member), product.ID)
	require.NoError(t, err)

	newPrice := ledger.NewPointsFromInt(60)
	_, err = engine.UpdateProduct(ctx, admin, product.ID, club.ProductPatch{PointsPrice: &newPrice})
	require.NoError(t, err)

	_, err = engine.ApproveRedemption(ctx, admin, req.ID)
	require.NoError(t, err)

	stored, err := store.MemberByID(ctx, member.ID)
	require.NoError(t, err)
	assertPoints(t, 4, stored.PointsCurrentYear)
}

func TestApproveRedemption_InsufficientPoints_NoMutation(t *testing.T) {
	// GIVEN: A pending request whose member can no longer afford it
	// WHEN: An admin approves
	// THEN: The approval fails and nothing changes anywhere

	engine, store := newTestEngine(t)
	ctx := context.Background()
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "carmen", 5)
	product := createProduct(t, engine, admin, "Wine tasting", 5, 2)

	req, err := engine.RequestRedemption(ctx, asPrincipal(member), product.ID)
	require.NoError(t, err)

	// Drain the member's points before approval
	_, err = engine.AdjustPoints(ctx, admin, member.ID, ledger.NewPointsFromInt(-3), "correction")
	require.NoError(t, err)

	_, err = engine.ApproveRedemption(ctx, admin, req.ID)
	require.Error(t, err)
	var insufficient *ledger.InsufficientPointsError
	assert.ErrorAs(t, err, &insufficient)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	stored, err := store.MemberByID(ctx, member.ID)
	require.NoError(t, err)
	assertPoints(t, 2, stored.PointsCurrentYear)

	p, err := store.ProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock, "stock untouched by failed approval")

	r, err := store.RedemptionByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, club.RedemptionPending, r.State, "request still pending")
}

func TestApproveRedemption_StockRace_SecondLoses(t *testing.T) {
	// GIVEN: Stock 1 and two pending requests from different members
	// WHEN: An admin approves both in turn
	// THEN: The second approval fails with a conflict and debits nothing

	engine, store := newTestEngine(t)
	ctx := context.Background()
	admin := createAdmin(t, store)
	first := createMember(t, engine, admin, "carmen", 10)
	second := createMember(t, engine, admin, "luis", 10)
	product := createProduct(t, engine, admin, "Polo shirt", 6, 1)

	reqA, err := engine.RequestRedemption(ctx, asPrincipal(first), product.ID)
	require.NoError(t, err)
	reqB, err := engine.RequestRedemption(ctx, asPrincipal(second), product.ID)
	require.NoError(t, err)

	_, err = engine.ApproveRedemption(ctx, admin, reqA.ID)
	require.NoError(t, err)

	_, err = engine.ApproveRedemption(ctx, admin, reqB.ID)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	stored, err := store.MemberByID(ctx, second.ID)
	require.NoError(t, err)
	assertPoints(t, 10, stored.PointsCurrentYear, "loser keeps their points")

	r, err := store.RedemptionByID(ctx, reqB.ID)
	require.NoError(t, err)
	assert.Equal(t, club.RedemptionPending, r.State, "loser's request stays pending for rejection")
}

func TestApproveRedemption_ConcurrentDoubleApproval_OneWinner(t *testing.T) {
	// GIVEN: One pending request
	// WHEN: Two admins approve it concurrently
	// THEN: Exactly one succeeds; points are debited exactly once

	engine, store := newTestEngine(t)
	ctx := context.Background()
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "carmen", 10)
	product := createProduct(t, engine, admin, "Polo shirt", 6, 3)

	req, err := engine.RequestRedemption(ctx, asPrincipal(member), product.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.ApproveRedemption(ctx, admin, req.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ledger.ErrNotFound)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one approval must win")

	stored, err := store.MemberByID(ctx, member.ID)
	require.NoError(t, err)
	assertPoints(t, 4, stored.PointsCurrentYear, "debited exactly once")

	p, err := store.ProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock, "stock decremented exactly once")
}

func TestRejectRedemption_LeavesBalancesAlone(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "ana", 10)
	product := createProduct(t, engine, admin, "Wine tasting", 6, 2)

	req, err := engine.RequestRedemption(ctx, asPrincipal(member), product.ID)
	require.NoError(t, err)

	rejected, err := engine.RejectRedemption(ctx, admin, req.ID, "out of season")
	require.NoError(t, err)
	assert.Equal(t, club.RedemptionRejected, rejected.State)
	assert.Equal(t, "out of season", rejected.AdminComment)

	stored, err := store.MemberByID(ctx, member.ID)
	require.NoError(t, err)
	assertPoints(t, 10, stored.PointsCurrentYear)

	p, err := store.ProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)
}

func TestRejectRedemption_AlreadyDecided_NotFound(t *testing.T) {
	// Terminal states are terminal: neither approving nor rejecting a
	// decided request can succeed.
	engine, store := newTestEngine(t)
	ctx := context.Background()
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "carmen", 10)
	product := createProduct(t, engine, admin, "Polo shirt", 6, 2)

	req, err := engine.RequestRedemption(ctx, asPrincipal(member), product.ID)
	require.NoError(t, err)
	_, err = engine.ApproveRedemption(ctx, admin, req.ID)
	require.NoError(t, err)

	_, err = engine.RejectRedemption(ctx, admin, req.ID, "too late")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = engine.ApproveRedemption(ctx, admin, req.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	stored, err := store.MemberByID(ctx, member.ID)
	require.NoError(t, err)
	assertPoints(t, 4, stored.PointsCurrentYear, "debited exactly once")
}

func TestApproveRedemption_RequiresAdmin(t *testing.T) {
	engine, store := newTestEngine(t)
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "luis", 10)
	product := createProduct(t, engine, admin, "Polo shirt", 6, 2)

	req, err := engine.RequestRedemption(context.Background(), asPrincipal(member), product.ID)
	require.NoError(t, err)

	_, err = engine.ApproveRedemption(context.Background(), asPrincipal(member), req.ID)
	assert.ErrorIs(t, err, ledger.ErrForbidden)
	_, err = engine.RejectRedemption(context.Background(), asPrincipal(member), req.ID, "")
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

// =============================================================================
// BALANCE INVARIANT
// =============================================================================

func TestBalance_AlwaysEqualsLedgerSum(t *testing.T) {
	// GIVEN: A member going through purchases, adjustments, and a redemption
	// THEN: After every operation the cached balance equals the sum of the
	//       current year's movements

	engine, store := newTestEngine(t)
	ctx := context.Background()
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "carmen", 7)
	product := createProduct(t, engine, admin, "Polo shirt", 6, 2)

	checkInvariant := func() {
		t.Helper()
		stored, err := store.MemberByID(ctx, member.ID)
		require.NoError(t, err)
		movements, err := store.Movements(ctx, member.ID, nil)
		require.NoError(t, err)
		sum := ledger.SumForYear(movements, time.Now().Year())
		assert.True(t, stored.PointsCurrentYear.Equal(sum),
			"balance %s != ledger sum %s", stored.PointsCurrentYear, sum)
	}

	checkInvariant() // opening balance

	_, err := engine.RecordPhysicalPurchase(ctx, admin, member.ID,
		decimal.NewFromFloat(47.00), "Marta", "Dinner")
	require.NoError(t, err)
	checkInvariant()

	_, err = engine.AdjustPoints(ctx, admin, member.ID, ledger.NewPoints(-1.5), "breakage")
	require.NoError(t, err)
	checkInvariant()

	req, err := engine.RequestRedemption(ctx, asPrincipal(member), product.ID)
	require.NoError(t, err)
	checkInvariant() // request writes no movement

	_, err = engine.ApproveRedemption(ctx, admin, req.ID)
	require.NoError(t, err)
	checkInvariant()
}

// =============================================================================
// ADJUSTMENTS & HISTORY
// =============================================================================

func TestAdjustPoints_Validation(t *testing.T) {
	engine, store := newTestEngine(t)
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "ana", 5)

	_, err := engine.AdjustPoints(context.Background(), admin, member.ID, ledger.Zero(), "noop")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = engine.AdjustPoints(context.Background(), admin, member.ID, ledger.NewPointsFromInt(1), "  ")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = engine.AdjustPoints(context.Background(), asPrincipal(member), member.ID,
		ledger.NewPointsFromInt(1), "self-serve")
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

func TestPointsHistory_SelfOrAdminOnly(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	admin := createAdmin(t, store)
	carmen := createMember(t, engine, admin, "carmen", 5)
	luis := createMember(t, engine, admin, "luis", 5)

	_, err := engine.PointsHistory(ctx, asPrincipal(carmen), carmen.ID, nil)
	assert.NoError(t, err)

	_, err = engine.PointsHistory(ctx, asPrincipal(carmen), luis.ID, nil)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	_, err = engine.PointsHistory(ctx, admin, luis.ID, nil)
	assert.NoError(t, err)
}

func TestPointsHistory_YearFilter(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "carmen", 5)

	thisYear := time.Now().Year()
	movements, err := engine.PointsHistory(ctx, admin, member.ID, &thisYear)
	require.NoError(t, err)
	assert.Len(t, movements, 1)

	lastYear := thisYear - 1
	movements, err = engine.PointsHistory(ctx, admin, member.ID, &lastYear)
	require.NoError(t, err)
	assert.Empty(t, movements)
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestLogin_GoodAndBadCredentials(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	admin := createAdmin(t, store)
	member := createMember(t, engine, admin, "carmen", 0)

	got, err := engine.Login(ctx, member.Email, "secret")
	require.NoError(t, err)
	assert.Equal(t, member.ID, got.ID)

	_, err = engine.Login(ctx, member.Email, "wrong")
	assert.ErrorIs(t, err, club.ErrInvalidCredentials)

	_, err = engine.Login(ctx, "nobody@club.test", "secret")
	assert.ErrorIs(t, err, club.ErrInvalidCredentials)
}
