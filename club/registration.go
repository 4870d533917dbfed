/*
registration.go - Membership application flow

PURPOSE:
  Anonymous visitors apply for membership; an admin approves or rejects.
  Approval is the only path that creates a member from outside: it mints a
  member number and a temporary password, inserts the member, and marks the
  application approved in the same transaction. Notifications fire after
  commit and never roll anything back.
*/
package club

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubhouse/points-engine/ledger"
)

// Register files a membership application. Open to anonymous callers.
// Conflicts: the email already belongs to a member, or an application for it
// is already pending.
func (e *Engine) Register(ctx context.Context, name, email string) (*PreRegistration, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" {
		return nil, &ledger.ValidationError{Field: "name", Detail: "required"}
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, &ledger.ValidationError{Field: "email", Detail: "valid email required"}
	}

	existing, err := e.store.MemberByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ledger.ConflictError{Detail: "email is already registered"}
	}
	pending, err := e.store.HasPendingPreRegistration(ctx, email)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, &ledger.ConflictError{Detail: "an application for this email is already pending"}
	}

	app := PreRegistration{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		State:        PreRegistrationPending,
		RegisteredAt: e.now(),
	}
	if err := e.store.InsertPreRegistration(ctx, app); err != nil {
		return nil, err
	}

	e.notifier.PreRegistrationReceived(name, email)
	e.log.Info("pre-registration received", zap.String("email", email))
	return &app, nil
}

// PendingPreRegistrations lists undecided applications. Admin only.
func (e *Engine) PendingPreRegistrations(ctx context.Context, by Principal) ([]PreRegistration, error) {
	if !by.IsAdmin() {
		return nil, ledger.ErrForbidden
	}
	return e.store.PendingPreRegistrations(ctx)
}

// ApprovalResult carries the freshly minted credentials back to the admin.
type ApprovalResult struct {
	MemberID     ledger.MemberID
	MemberNumber string
	TempPassword string
}

// ApprovePreRegistration creates the member and closes the application in
// one transaction. The welcome notification (with the temporary password)
// fires only after commit.
func (e *Engine) ApprovePreRegistration(ctx context.Context, by Principal, id string) (*ApprovalResult, error) {
	if !by.IsAdmin() {
		return nil, ledger.ErrForbidden
	}
	if e.hasher == nil {
		return nil, fmt.Errorf("%w: engine has no password hasher", ledger.ErrPersistence)
	}

	app, err := e.store.PreRegistrationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil || app.State != PreRegistrationPending {
		return nil, &ledger.NotFoundError{Entity: "pending pre-registration", ID: id}
	}

	tempPassword := randomToken(4) // 8 hex chars
	hash, err := e.hasher.Hash(tempPassword)
	if err != nil {
		return nil, fmt.Errorf("%w: hashing temporary password: %v", ledger.ErrPersistence, err)
	}

	now := e.now()
	member := Member{
		ID:                ledger.MemberID(uuid.NewString()),
		MemberNumber:      newMemberNumber(now),
		Name:              app.Name,
		Email:             app.Email,
		PasswordHash:      hash,
		Role:              RoleMember,
		PointsCurrentYear: ledger.Zero(),
		CreatedAt:         now,
	}

	err = e.store.WithTx(ctx, func(tx Tx) error {
		ok, err := tx.DecidePreRegistrationIfPending(ctx, id, PreRegistrationApproved, by.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return &ledger.NotFoundError{Entity: "pending pre-registration", ID: id}
		}
		return tx.InsertMember(ctx, member)
	})
	if err != nil {
		return nil, err
	}

	e.notifier.MemberApproved(member.Name, member.Email, member.MemberNumber, tempPassword)
	e.log.Info("pre-registration approved",
		zap.String("member_number", member.MemberNumber),
		zap.String("admin", string(by.ID)))

	return &ApprovalResult{
		MemberID:     member.ID,
		MemberNumber: member.MemberNumber,
		TempPassword: tempPassword,
	}, nil
}

// RejectPreRegistration closes an application without creating a member.
func (e *Engine) RejectPreRegistration(ctx context.Context, by Principal, id string) error {
	if !by.IsAdmin() {
		return ledger.ErrForbidden
	}

	app, err := e.store.PreRegistrationByID(ctx, id)
	if err != nil {
		return err
	}

	var decided bool
	err = e.store.WithTx(ctx, func(tx Tx) error {
		ok, err := tx.DecidePreRegistrationIfPending(ctx, id, PreRegistrationRejected, by.ID, e.now())
		if err != nil {
			return err
		}
		decided = ok
		return nil
	})
	if err != nil {
		return err
	}
	if !decided {
		return &ledger.NotFoundError{Entity: "pending pre-registration", ID: id}
	}

	if app != nil {
		e.notifier.PreRegistrationRejected(app.Name, app.Email)
	}
	return nil
}

// newMemberNumber mints a human-readable member number. Uniqueness is
// enforced by the store; a collision on the timestamp suffix surfaces as a
// conflict and the admin retries.
func newMemberNumber(now time.Time) string {
	return fmt.Sprintf("SOC%06d", now.UnixMilli()%1000000)
}

func randomToken(bytes int) string {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// fall back to a time-derived token rather than panic.
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(b)
}
