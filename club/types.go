/*
Package club implements the membership and points engine for the club.

PURPOSE:
  This is the domain core: members, products, purchases, redemptions, and
  the transactional engine that keeps the points ledger, the cached member
  balances, and the product stock consistent under concurrent admin actions.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member: a club participant with a role and a cached yearly point balance
  - Product: a redeemable catalog item with a points price and stock
  - RedemptionRequest: pending -> delivered | rejected, one-way, terminal
  - PhysicalPurchase: a recorded purchase that credits points immediately
  - PreRegistration: a membership application awaiting admin approval

SEE ALSO:
  - engine.go: The transactional operations over these types
  - registration.go: Pre-registration approval flow
*/
package club

import (
	"time"

	"github.com/clubhouse/points-engine/ledger"
)

// =============================================================================
// PRINCIPAL & ROLES
// =============================================================================

// Role of an authenticated caller.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Principal is the authenticated identity passed explicitly to every engine
// operation. The engine trusts the identity and performs its own role checks.
type Principal struct {
	ID           ledger.MemberID
	MemberNumber string
	Role         Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// =============================================================================
// MEMBER
// =============================================================================

// Member is a club participant.
//
// PointsCurrentYear is a cached aggregate: it must always equal the sum of
// the member's ledger movements for the current year. It is never set
// directly by a client; only the engine changes it, and only as a side
// effect of writing a movement in the same storage transaction.
type Member struct {
	ID           ledger.MemberID
	MemberNumber string
	Name         string
	Email        string
	PasswordHash string
	Role         Role

	PointsCurrentYear ledger.Points

	CreatedAt time.Time
}

// =============================================================================
// PRODUCT
// =============================================================================

// Category controls catalog visibility.
type Category string

const (
	// CategoryPublic products are visible to anonymous visitors.
	CategoryPublic Category = "public"

	// CategoryMembers products are visible only to logged-in members.
	CategoryMembers Category = "members"
)

func (c Category) Valid() bool {
	return c == CategoryPublic || c == CategoryMembers
}

// Product is a redeemable catalog item. Stock is mutated only by the engine
// during redemption approval.
type Product struct {
	ID          ledger.ProductID
	Name        string
	Description string
	PointsPrice ledger.Points
	Stock       int
	Category    Category
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// REDEMPTION
// =============================================================================

// RedemptionState is the lifecycle state of a redemption request.
// Transitions are one-directional: pending -> delivered, pending -> rejected.
// Delivered and rejected are terminal.
type RedemptionState string

const (
	RedemptionPending   RedemptionState = "pending"
	RedemptionDelivered RedemptionState = "delivered"
	RedemptionRejected  RedemptionState = "rejected"
)

// CanTransitionTo reports whether the state machine allows the transition.
func (s RedemptionState) CanTransitionTo(next RedemptionState) bool {
	return s == RedemptionPending &&
		(next == RedemptionDelivered || next == RedemptionRejected)
}

// RedemptionRequest is a member's request to exchange points for a product.
//
// PointsCost is an immutable snapshot of the product price at request time.
// Approval debits exactly this amount; later price edits never affect a
// pending request.
type RedemptionRequest struct {
	ID        ledger.RedemptionID
	MemberID  ledger.MemberID
	ProductID ledger.ProductID

	PointsCost ledger.Points
	State      RedemptionState

	RequestedAt time.Time
	DecidedAt   *time.Time

	// AdminComment is an optional rejection reason.
	AdminComment string

	// Display fields populated by list queries (joins), not stored.
	MemberName   string
	MemberNumber string
	ProductName  string
}

// =============================================================================
// PHYSICAL PURCHASE
// =============================================================================

// PhysicalPurchase records a purchase made in person at the club. Immutable.
// Exactly one ledger movement is written per purchase, linked by backlink.
type PhysicalPurchase struct {
	ID           ledger.PurchaseID
	MemberID     ledger.MemberID
	EuroAmount   ledger.Points // euros share the decimal representation
	EmployeeTag  string
	ProductLabel string
	RecordedBy   ledger.MemberID
	Description  string
	CreatedAt    time.Time
}

// =============================================================================
// PRE-REGISTRATION
// =============================================================================

// PreRegistrationState mirrors the redemption lifecycle shape.
type PreRegistrationState string

const (
	PreRegistrationPending  PreRegistrationState = "pending"
	PreRegistrationApproved PreRegistrationState = "approved"
	PreRegistrationRejected PreRegistrationState = "rejected"
)

// PreRegistration is a membership application. Approval creates the Member.
type PreRegistration struct {
	ID           string
	Name         string
	Email        string
	State        PreRegistrationState
	RegisteredAt time.Time
	DecidedAt    *time.Time
	DecidedBy    ledger.MemberID
}
