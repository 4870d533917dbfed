/*
engine.go - The transactional points/redemption engine

PURPOSE:
  Orchestrates every mutation of the three shared resources: the points
  ledger, the cached member balances, and the product stock. Each operation
  runs as one unit of work: validate preconditions, apply multi-row updates,
  write the ledger movement, commit. Any failure aborts the whole thing.

THE APPROVAL PATH:
  ApproveRedemption is the highest-contention operation in the system and
  the only multi-row read-modify-write. Inside one transaction it:
    1. Re-fetches the request; bails unless still pending
    2. Re-checks stock > 0
    3. Re-checks the member can afford the snapshot cost
    4. Decrements stock
    5. Debits the member balance
    6. Marks the request delivered
    7. Writes the -cost movement with a backlink to the request
  The *ForUpdate reads keep the member and product rows stable between the
  checks and the writes, closing the classic check-then-act race.

OPTIMISTIC REQUESTS:
  RequestRedemption deliberately reserves nothing. It checks stock without
  locking, snapshots the price, and inserts a pending row. Multiple pending
  requests may outnumber stock or a member's points; approval re-validates
  and surfaces the loss as a conflict. This keeps contention off the member
  path and concentrates it at approval, where an admin can react.

SEE ALSO:
  - store.go: The Store/Tx contracts this file drives
  - registration.go: Membership application flow
  - members.go, catalog.go: Plain CRUD around the core
*/
package club

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clubhouse/points-engine/ledger"
)

// ErrInvalidCredentials is returned by Login for a bad email/password pair.
// Deliberately indistinguishable between the two cases.
var ErrInvalidCredentials = errors.New("invalid credentials")

// One point per ten euros spent, fractional points allowed.
var euroDivisor = decimal.NewFromInt(10)

// EuroToPoints converts a euro amount to awarded points: amount/10 rounded
// half-up to two decimals, so 47.00€ earns exactly 4.70 points.
func EuroToPoints(euros decimal.Decimal) ledger.Points {
	return ledger.Points{Value: euros.Div(euroDivisor).Round(2)}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the only writer of member balances, product stock, redemption
// states, and ledger movements.
type Engine struct {
	store    Store
	hasher   Hasher
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

// NewEngine wires the engine. hasher and notifier may be nil when the
// registration flow is unused (tests exercising only the ledger core).
func NewEngine(store Store, hasher Hasher, notifier Notifier, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Engine{
		store:    store,
		hasher:   hasher,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

type nopNotifier struct{}

func (nopNotifier) PreRegistrationReceived(string, string)        {}
func (nopNotifier) MemberApproved(string, string, string, string) {}
func (nopNotifier) PreRegistrationRejected(string, string)        {}

// =============================================================================
// PURCHASE RECORDER
// =============================================================================

// PurchaseResult is returned after a physical purchase is recorded.
type PurchaseResult struct {
	PurchaseID    ledger.PurchaseID
	MovementID    ledger.MovementID
	PointsAwarded ledger.Points
	NewBalance    ledger.Points
}

// RecordPhysicalPurchase records an in-person purchase and credits points
// immediately (no approval step). Admin only.
//
// Single transaction: insert the purchase, write the +points movement with a
// backlink, bump the member's cached balance. Any step failing rolls back
// all of it; the caller retries by resubmitting.
func (e *Engine) RecordPhysicalPurchase(ctx context.Context, by Principal, memberID ledger.MemberID, euroAmount decimal.Decimal, employeeTag, productLabel string) (*PurchaseResult, error) {
	if !by.IsAdmin() {
		return nil, ledger.ErrForbidden
	}
	employeeTag = strings.TrimSpace(employeeTag)
	productLabel = strings.TrimSpace(productLabel)
	switch {
	case memberID == "":
		return nil, &ledger.ValidationError{Field: "member_id", Detail: "required"}
	case !euroAmount.IsPositive():
		return nil, &ledger.ValidationError{Field: "euro_amount", Detail: "must be positive"}
	case employeeTag == "":
		return nil, &ledger.ValidationError{Field: "employee", Detail: "required"}
	case productLabel == "":
		return nil, &ledger.ValidationError{Field: "product", Detail: "required"}
	}

	awarded := EuroToPoints(euroAmount)
	now := e.now()
	purchase := PhysicalPurchase{
		ID:           ledger.PurchaseID(uuid.NewString()),
		MemberID:     memberID,
		EuroAmount:   ledger.Points{Value: euroAmount},
		EmployeeTag:  employeeTag,
		ProductLabel: productLabel,
		RecordedBy:   by.ID,
		Description:  fmt.Sprintf("Purchase of %s recorded by %s", productLabel, employeeTag),
		CreatedAt:    now,
	}
	movement := ledger.Movement{
		ID:          ledger.MovementID(uuid.NewString()),
		MemberID:    memberID,
		Amount:      awarded,
		Reason:      ledger.ReasonPhysicalPurchase,
		Description: fmt.Sprintf("Purchase of %s€ (%s) recorded by %s", euroAmount, productLabel, employeeTag),
		PurchaseID:  purchase.ID,
		Year:        now.Year(),
		CreatedAt:   now,
	}

	var newBalance ledger.Points
	err := e.store.WithTx(ctx, func(tx Tx) error {
		member, err := tx.MemberForUpdate(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return &ledger.NotFoundError{Entity: "member", ID: string(memberID)}
		}
		if err := tx.InsertPurchase(ctx, purchase); err != nil {
			return err
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		if err := tx.AddMemberPoints(ctx, memberID, awarded); err != nil {
			return err
		}
		newBalance = member.PointsCurrentYear.Add(awarded)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("purchase recorded",
		zap.String("member", string(memberID)),
		zap.String("euros", euroAmount.String()),
		zap.String("points", awarded.String()))

	return &PurchaseResult{
		PurchaseID:    purchase.ID,
		MovementID:    movement.ID,
		PointsAwarded: awarded,
		NewBalance:    newBalance,
	}, nil
}

// =============================================================================
// REDEMPTION STATE MACHINE
// =============================================================================

// RequestRedemption creates a pending redemption for the calling member.
// Stock is checked optimistically and nothing is reserved; see the file
// header for why.
func (e *Engine) RequestRedemption(ctx context.Context, by Principal, productID ledger.ProductID) (*RedemptionRequest, error) {
	if productID == "" {
		return nil, &ledger.ValidationError{Field: "product_id", Detail: "required"}
	}

	product, err := e.store.ProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, &ledger.NotFoundError{Entity: "product", ID: string(productID)}
	}
	if product.Stock <= 0 {
		return nil, &ledger.ConflictError{Detail: "product is sold out"}
	}

	req := RedemptionRequest{
		ID:          ledger.RedemptionID(uuid.NewString()),
		MemberID:    by.ID,
		ProductID:   productID,
		PointsCost:  product.PointsPrice, // price snapshot, never re-read
		State:       RedemptionPending,
		RequestedAt: e.now(),
		ProductName: product.Name,
	}
	if err := e.store.InsertRedemption(ctx, req); err != nil {
		return nil, err
	}

	e.log.Info("redemption requested",
		zap.String("member", string(by.ID)),
		zap.String("product", string(productID)),
		zap.String("cost", req.PointsCost.String()))
	return &req, nil
}

// ApproveRedemption transitions a pending request to delivered, debiting the
// member and decrementing stock atomically. Exactly one of two concurrent
// approvals of the same request can succeed; the loser sees NotFound.
func (e *Engine) ApproveRedemption(ctx context.Context, by Principal, id ledger.RedemptionID) (*RedemptionRequest, error) {
	if !by.IsAdmin() {
		return nil, ledger.ErrForbidden
	}
	if id == "" {
		return nil, &ledger.ValidationError{Field: "redemption_id", Detail: "required"}
	}

	var approved *RedemptionRequest
	err := e.store.WithTx(ctx, func(tx Tx) error {
		req, err := tx.RedemptionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req == nil || req.State != RedemptionPending {
			return &ledger.NotFoundError{Entity: "pending redemption", ID: string(id)}
		}

		product, err := tx.ProductForUpdate(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return &ledger.NotFoundError{Entity: "product", ID: string(req.ProductID)}
		}
		if product.Stock <= 0 {
			return &ledger.ConflictError{Detail: "product sold out while the request was pending"}
		}

		member, err := tx.MemberForUpdate(ctx, req.MemberID)
		if err != nil {
			return err
		}
		if member == nil {
			return &ledger.NotFoundError{Entity: "member", ID: string(req.MemberID)}
		}
		if member.PointsCurrentYear.LessThan(req.PointsCost) {
			return &ledger.InsufficientPointsError{
				MemberID:  req.MemberID,
				Available: member.PointsCurrentYear,
				Required:  req.PointsCost,
			}
		}

		if err := tx.DecrementProductStock(ctx, req.ProductID); err != nil {
			return err
		}
		if err := tx.AddMemberPoints(ctx, req.MemberID, req.PointsCost.Neg()); err != nil {
			return err
		}
		now := e.now()
		if err := tx.MarkRedemptionDelivered(ctx, id, now); err != nil {
			return err
		}
		movement := ledger.Movement{
			ID:           ledger.MovementID(uuid.NewString()),
			MemberID:     req.MemberID,
			Amount:       req.PointsCost.Neg(),
			Reason:       ledger.ReasonRedemption,
			Description:  fmt.Sprintf("Approved redemption of product %s", req.ProductID),
			RedemptionID: req.ID,
			Year:         now.Year(),
			CreatedAt:    now,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}

		out := *req
		out.State = RedemptionDelivered
		out.DecidedAt = &now
		approved = &out
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("redemption approved",
		zap.String("redemption", string(id)),
		zap.String("admin", string(by.ID)),
		zap.String("cost", approved.PointsCost.String()))
	return approved, nil
}

// RejectRedemption transitions a pending request to rejected. No balances
// are touched, so a single conditional update suffices; the state=pending
// condition is the single-writer gate.
func (e *Engine) RejectRedemption(ctx context.Context, by Principal, id ledger.RedemptionID, comment string) (*RedemptionRequest, error) {
	if !by.IsAdmin() {
		return nil, ledger.ErrForbidden
	}
	if id == "" {
		return nil, &ledger.ValidationError{Field: "redemption_id", Detail: "required"}
	}

	ok, err := e.store.RejectRedemptionIfPending(ctx, id, comment, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ledger.NotFoundError{Entity: "pending redemption", ID: string(id)}
	}

	req, err := e.store.RedemptionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	e.log.Info("redemption rejected",
		zap.String("redemption", string(id)),
		zap.String("admin", string(by.ID)))
	return req, nil
}

// PendingRedemptions lists undecided requests for the admin queue.
func (e *Engine) PendingRedemptions(ctx context.Context, by Principal) ([]RedemptionRequest, error) {
	if !by.IsAdmin() {
		return nil, ledger.ErrForbidden
	}
	return e.store.PendingRedemptions(ctx)
}

// RedemptionsForMember lists the caller's own requests, newest first.
func (e *Engine) RedemptionsForMember(ctx context.Context, by Principal) ([]RedemptionRequest, error) {
	return e.store.RedemptionsByMember(ctx, by.ID)
}

// =============================================================================
// MANUAL ADJUSTMENTS
// =============================================================================

// AdjustPoints writes a manual correction movement and shifts the cached
// balance by the same amount, atomically. Admin only. Delta may be either
// sign; zero is rejected.
func (e *Engine) AdjustPoints(ctx context.Context, by Principal, memberID ledger.MemberID, delta ledger.Points, description string) (*ledger.Movement, error) {
	if !by.IsAdmin() {
		return nil, ledger.ErrForbidden
	}
	if delta.IsZero() {
		return nil, &ledger.ValidationError{Field: "delta", Detail: "must be non-zero"}
	}
	if strings.TrimSpace(description) == "" {
		return nil, &ledger.ValidationError{Field: "description", Detail: "required"}
	}

	now := e.now()
	movement := ledger.Movement{
		ID:          ledger.MovementID(uuid.NewString()),
		MemberID:    memberID,
		Amount:      delta,
		Reason:      ledger.ReasonAdjustment,
		Description: strings.TrimSpace(description),
		Year:        now.Year(),
		CreatedAt:   now,
	}
	err := e.store.WithTx(ctx, func(tx Tx) error {
		member, err := tx.MemberForUpdate(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return &ledger.NotFoundError{Entity: "member", ID: string(memberID)}
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		return tx.AddMemberPoints(ctx, memberID, delta)
	})
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

// =============================================================================
// LEDGER READS
// =============================================================================

// PointsHistory returns a member's movements, newest first. Members may read
// only their own history; admins may read anyone's. year == nil means all
// years.
func (e *Engine) PointsHistory(ctx context.Context, by Principal, memberID ledger.MemberID, year *int) ([]ledger.Movement, error) {
	if memberID != by.ID && !by.IsAdmin() {
		return nil, ledger.ErrForbidden
	}
	return e.store.Movements(ctx, memberID, year)
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// Login verifies credentials and returns the member. The HTTP layer mints
// the token; the engine only owns the credential check.
func (e *Engine) Login(ctx context.Context, email, password string) (*Member, error) {
	if email == "" || password == "" {
		return nil, &ledger.ValidationError{Field: "credentials", Detail: "email and password required"}
	}
	member, err := e.store.MemberByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if member == nil || e.hasher == nil || !e.hasher.Compare(member.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return member, nil
}
