/*
members.go - Member administration

Plain CRUD around the core. The one rule that matters: a member's cached
balance is never accepted from a client on these paths except at creation,
where an admin may seed an opening balance (recorded as an adjustment
movement so the ledger invariant holds from day one).
*/
package club

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clubhouse/points-engine/ledger"
)

// CreateMemberInput is the admin-facing creation payload.
type CreateMemberInput struct {
	Name          string
	Email         string
	Password      string
	MemberNumber  string
	Role          Role
	OpeningPoints ledger.Points
}

// CreateMember creates a member directly (admin path, bypassing
// pre-registration). An opening balance, if any, is written as an adjustment
// movement in the same transaction so the balance always equals the ledger
// sum.
func (e *Engine) CreateMember(ctx context.Context, by Principal, in CreateMemberInput) (*Member, error) {
	if !by.IsAdmin() {
		return nil, ledger.ErrForbidden
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.MemberNumber = strings.TrimSpace(in.MemberNumber)
	switch {
	case in.Name == "":
		return nil, &ledger.ValidationError{Field: "name", Detail: "required"}
	case in.Email == "" || !strings.Contains(in.Email, "@"):
		return nil, &ledger.ValidationError{Field: "email", Detail: "valid email required"}
	case in.Password == "":
		return nil, &ledger.ValidationError{Field: "password", Detail: "required"}
	case in.MemberNumber == "":
		return nil, &ledger.ValidationError{Field: "member_number", Detail: "required"}
	case in.OpeningPoints.IsNegative():
		return nil, &ledger.ValidationError{Field: "opening_points", Detail: "must not be negative"}
	}
	if in.Role == "" {
		in.Role = RoleMember
	}
	if in.Role != RoleMember && in.Role != RoleAdmin {
		return nil, &ledger.ValidationError{Field: "role", Detail: "must be member or admin"}
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	now := e.now()
	member := Member{
		ID:                ledger.MemberID(uuid.NewString()),
		MemberNumber:      in.MemberNumber,
		Name:              in.Name,
		Email:             in.Email,
		PasswordHash:      hash,
		Role:              in.Role,
		PointsCurrentYear: ledger.Zero(),
		CreatedAt:         now,
	}

	err = e.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertMember(ctx, member); err != nil {
			return err
		}
		if in.OpeningPoints.IsZero() {
			return nil
		}
		movement := ledger.Movement{
			ID:          ledger.MovementID(uuid.NewString()),
			MemberID:    member.ID,
			Amount:      in.OpeningPoints,
			Reason:      ledger.ReasonAdjustment,
			Description: "Opening balance",
			Year:        now.Year(),
			CreatedAt:   now,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		return tx.AddMemberPoints(ctx, member.ID, in.OpeningPoints)
	})
	if err != nil {
		return nil, err
	}

	member.PointsCurrentYear = in.OpeningPoints
	return &member, nil
}

// ListMembers returns all members. Admin only.
func (e *Engine) ListMembers(ctx context.Context, by Principal) ([]Member, error) {
	if !by.IsAdmin() {
		return nil, ledger.ErrForbidden
	}
	return e.store.ListMembers(ctx)
}

// Profile returns the calling member's own record.
func (e *Engine) Profile(ctx context.Context, by Principal) (*Member, error) {
	member, err := e.store.MemberByID(ctx, by.ID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, &ledger.NotFoundError{Entity: "member", ID: string(by.ID)}
	}
	return member, nil
}

// DeleteMember removes a member. Admin only. Members with ledger history are
// protected by referential constraints; the store surfaces that as a
// conflict rather than cascading.
func (e *Engine) DeleteMember(ctx context.Context, by Principal, id ledger.MemberID) error {
	if !by.IsAdmin() {
		return ledger.ErrForbidden
	}
	return e.store.DeleteMember(ctx, id)
}
