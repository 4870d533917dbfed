/*
store.go - Persistence contracts consumed by the engine

PURPOSE:
  The engine accepts these interfaces and never touches SQL. The sqlite
  package implements them; tests may substitute their own.

TRANSACTIONAL BOUNDARY:
  WithTx runs fn inside one storage transaction. Everything fn does through
  the Tx commits atomically or not at all. The *ForUpdate reads inside a Tx
  are guaranteed stable until commit: no concurrent WithTx can interleave
  between the read and the subsequent writes. This is what makes the
  approval path's check-then-act sequence safe.

SEE ALSO:
  - store/sqlite/sqlite.go: The implementation
  - engine.go: The only caller of WithTx
*/
package club

import (
	"context"
	"time"

	"github.com/clubhouse/points-engine/ledger"
)

// Store is the persistence surface of the engine. Lookup methods return
// (nil, nil) when the entity is absent; insert methods surface uniqueness
// violations as ledger.ErrConflict.
type Store interface {
	// Members
	MemberByID(ctx context.Context, id ledger.MemberID) (*Member, error)
	MemberByEmail(ctx context.Context, email string) (*Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
	InsertMember(ctx context.Context, m Member) error
	DeleteMember(ctx context.Context, id ledger.MemberID) error

	// Products
	ProductByID(ctx context.Context, id ledger.ProductID) (*Product, error)
	ListProducts(ctx context.Context, publicOnly bool) ([]Product, error)
	InsertProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id ledger.ProductID) error

	// Redemptions
	RedemptionByID(ctx context.Context, id ledger.RedemptionID) (*RedemptionRequest, error)
	PendingRedemptions(ctx context.Context) ([]RedemptionRequest, error)
	RedemptionsByMember(ctx context.Context, id ledger.MemberID) ([]RedemptionRequest, error)
	InsertRedemption(ctx context.Context, r RedemptionRequest) error

	// RejectRedemptionIfPending flips a pending request to rejected in one
	// conditional update. Returns false when the request was absent or
	// already decided; no state changes in that case.
	RejectRedemptionIfPending(ctx context.Context, id ledger.RedemptionID, comment string, at time.Time) (bool, error)

	// Movements. A nil year means all years. Ordered newest first.
	Movements(ctx context.Context, id ledger.MemberID, year *int) ([]ledger.Movement, error)

	// Pre-registrations
	InsertPreRegistration(ctx context.Context, p PreRegistration) error
	PreRegistrationByID(ctx context.Context, id string) (*PreRegistration, error)
	PendingPreRegistrations(ctx context.Context) ([]PreRegistration, error)
	HasPendingPreRegistration(ctx context.Context, email string) (bool, error)

	// WithTx executes fn inside one storage transaction.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write surface available inside a storage transaction. The
// *ForUpdate reads lock out concurrent transactions until commit.
type Tx interface {
	MemberForUpdate(ctx context.Context, id ledger.MemberID) (*Member, error)
	ProductForUpdate(ctx context.Context, id ledger.ProductID) (*Product, error)
	RedemptionForUpdate(ctx context.Context, id ledger.RedemptionID) (*RedemptionRequest, error)

	// AddMemberPoints shifts the cached balance by delta (signed). Callers
	// must write the matching movement in the same transaction.
	AddMemberPoints(ctx context.Context, id ledger.MemberID, delta ledger.Points) error

	DecrementProductStock(ctx context.Context, id ledger.ProductID) error
	MarkRedemptionDelivered(ctx context.Context, id ledger.RedemptionID, at time.Time) error

	InsertMovement(ctx context.Context, m ledger.Movement) error
	InsertPurchase(ctx context.Context, p PhysicalPurchase) error
	InsertMember(ctx context.Context, m Member) error

	// DecidePreRegistrationIfPending is the conditional single-writer gate
	// for membership applications, mirroring redemption rejection.
	DecidePreRegistrationIfPending(ctx context.Context, id string, state PreRegistrationState, by ledger.MemberID, at time.Time) (bool, error)
}

// Hasher abstracts password hashing so the engine does not depend on a
// specific credential scheme.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// Notifier receives fire-and-forget notifications after state transitions
// commit. Implementations must not block and cannot fail the caller; a lost
// notification never rolls back an engine transaction.
type Notifier interface {
	PreRegistrationReceived(name, email string)
	MemberApproved(name, email, memberNumber, tempPassword string)
	PreRegistrationRejected(name, email string)
}
