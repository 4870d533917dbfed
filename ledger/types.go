/*
Package ledger provides the core value types for the points ledger.

PURPOSE:
  This package contains the building blocks shared by every layer of the
  system: point amounts, immutable movement records, and the error
  taxonomy. It knows nothing about HTTP, storage, or the club domain.

KEY CONCEPTS IN THIS FILE (types.go):
  - Points: A decimal point amount (fractional points are legal tender here)
  - Movement: An immutable signed ledger entry explaining a balance change
  - Reason: Why the movement happened (purchase, redemption, adjustment)

DESIGN PRINCIPLES:
  1. Immutability: Movements are never updated or deleted once written
  2. Precision: decimal.Decimal throughout, never float64
  3. Auditability: Every movement carries a reason, description, and a
     backlink to the purchase or redemption that produced it

SEE ALSO:
  - errors.go: Error taxonomy used across the engine
  - club/engine.go: The only writer of movements
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POINTS - Decimal point amount
// =============================================================================

// Points is a signed point amount. Fractional points are permitted (a 47€
// purchase earns 4.70 points), so all arithmetic goes through decimal.
type Points struct {
	Value decimal.Decimal
}

func NewPoints(value float64) Points {
	return Points{Value: decimal.NewFromFloat(value)}
}

func NewPointsFromInt(value int) Points {
	return Points{Value: decimal.NewFromInt(int64(value))}
}

// ParsePoints parses a decimal string. Invalid input yields zero points;
// stored values are always written by us so this never loses data in practice.
func ParsePoints(s string) Points {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Points{Value: decimal.Zero}
	}
	return Points{Value: d}
}

func Zero() Points { return Points{Value: decimal.Zero} }

func (p Points) Add(q Points) Points       { return Points{Value: p.Value.Add(q.Value)} }
func (p Points) Sub(q Points) Points       { return Points{Value: p.Value.Sub(q.Value)} }
func (p Points) Neg() Points               { return Points{Value: p.Value.Neg()} }
func (p Points) IsNegative() bool          { return p.Value.IsNegative() }
func (p Points) IsZero() bool              { return p.Value.IsZero() }
func (p Points) IsPositive() bool          { return p.Value.IsPositive() }
func (p Points) LessThan(q Points) bool    { return p.Value.LessThan(q.Value) }
func (p Points) GreaterThan(q Points) bool { return p.Value.GreaterThan(q.Value) }
func (p Points) Equal(q Points) bool       { return p.Value.Equal(q.Value) }
func (p Points) String() string            { return p.Value.String() }

// Float64 is for JSON responses only; internal math stays decimal.
func (p Points) Float64() float64 {
	f, _ := p.Value.Float64()
	return f
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string
type ProductID string
type MovementID string
type RedemptionID string
type PurchaseID string

// =============================================================================
// MOVEMENT - One immutable signed ledger entry
// =============================================================================

// Reason explains why a movement was written.
type Reason string

const (
	// ReasonPhysicalPurchase credits points for a purchase made at the club bar
	// or shop. Always positive.
	ReasonPhysicalPurchase Reason = "physical_purchase"

	// ReasonRedemption debits points when a redemption is approved and the
	// product handed over. Always negative.
	ReasonRedemption Reason = "redemption"

	// ReasonAdjustment is a manual admin correction, either sign.
	ReasonAdjustment Reason = "adjustment"
)

// Movement is one entry in the points ledger. Once written it is never
// updated or deleted; corrections are written as adjustment movements.
//
// The member's cached balance must always equal the sum of that member's
// movements for the current year. Only the engine writes movements, and it
// always updates the cached balance in the same storage transaction.
type Movement struct {
	ID       MovementID
	MemberID MemberID

	// Amount is signed: positive for credits, negative for debits.
	Amount Points

	Reason      Reason
	Description string

	// Backlinks to the originating record. At most one is set.
	PurchaseID   PurchaseID
	RedemptionID RedemptionID

	// Year partitions the ledger for yearly balance views.
	Year int

	CreatedAt time.Time
}

// SumForYear totals the movements recorded for a given year. This is the
// reference value the cached member balance is checked against.
func SumForYear(movements []Movement, year int) Points {
	total := Zero()
	for _, m := range movements {
		if m.Year == year {
			total = total.Add(m.Amount)
		}
	}
	return total
}
