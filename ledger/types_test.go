package ledger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clubhouse/points-engine/ledger"
)

func TestPoints_Arithmetic(t *testing.T) {
	a := ledger.NewPoints(4.7)
	b := ledger.NewPoints(0.3)

	assert.True(t, a.Add(b).Equal(ledger.NewPointsFromInt(5)))
	assert.True(t, a.Sub(b).Equal(ledger.NewPoints(4.4)))
	assert.True(t, a.Neg().Equal(ledger.NewPoints(-4.7)))
	assert.True(t, b.LessThan(a))
	assert.True(t, a.GreaterThan(b))
	assert.True(t, ledger.Zero().IsZero())
	assert.True(t, a.Neg().IsNegative())
}

func TestParsePoints_InvalidYieldsZero(t *testing.T) {
	assert.True(t, ledger.ParsePoints("garbage").IsZero())
	assert.True(t, ledger.ParsePoints("4.70").Equal(ledger.NewPoints(4.7)))
}

func TestSumForYear_PartitionsByYear(t *testing.T) {
	now := time.Now()
	movements := []ledger.Movement{
		{Amount: ledger.NewPoints(4.7), Year: 2025, CreatedAt: now},
		{Amount: ledger.NewPoints(-6), Year: 2025, CreatedAt: now},
		{Amount: ledger.NewPoints(100), Year: 2024, CreatedAt: now},
	}
	assert.True(t, ledger.SumForYear(movements, 2025).Equal(ledger.NewPoints(-1.3)))
	assert.True(t, ledger.SumForYear(movements, 2024).Equal(ledger.NewPointsFromInt(100)))
	assert.True(t, ledger.SumForYear(movements, 2023).IsZero())
}

func TestErrorTaxonomy_Unwrapping(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{&ledger.ValidationError{Field: "name", Detail: "required"}, ledger.ErrValidation},
		{&ledger.NotFoundError{Entity: "member", ID: "m-1"}, ledger.ErrNotFound},
		{&ledger.ConflictError{Detail: "sold out"}, ledger.ErrConflict},
		{&ledger.InsufficientPointsError{MemberID: "m-1"}, ledger.ErrConflict},
	}
	for _, c := range cases {
		assert.ErrorIs(t, c.err, c.sentinel, "%T", c.err)
		assert.True(t, ledger.IsClientError(c.err), "%T", c.err)
	}
	assert.False(t, ledger.IsClientError(errors.New("boom")))
	assert.False(t, ledger.IsClientError(ledger.ErrPersistence))
}
