/*
seed.go - Bootstrap and demo data

PURPOSE:
  Bootstrap creates the first admin account on an empty database so a fresh
  deployment is usable immediately. LoadDemo fills a development database
  with a small, recognizable club: a few members with points, a catalog,
  and a pending redemption for the approval queue.

SEE ALSO:
  - cmd/server/main.go: Calls Bootstrap on startup
  - config/config.go: AdminSeed
*/
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clubhouse/points-engine/club"
	"github.com/clubhouse/points-engine/config"
	"github.com/clubhouse/points-engine/ledger"
)

// Bootstrap creates the seed admin when no members exist yet. Idempotent.
func Bootstrap(ctx context.Context, store club.Store, hasher club.Hasher, seed config.AdminSeed, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	members, err := store.ListMembers(ctx)
	if err != nil {
		return fmt.Errorf("checking for existing members: %w", err)
	}
	if len(members) > 0 {
		return nil
	}

	hash, err := hasher.Hash(seed.Password)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}
	admin := club.Member{
		ID:                ledger.MemberID(uuid.NewString()),
		MemberNumber:      "SOC000001",
		Name:              seed.Name,
		Email:             seed.Email,
		PasswordHash:      hash,
		Role:              club.RoleAdmin,
		PointsCurrentYear: ledger.Zero(),
		CreatedAt:         time.Now(),
	}
	if err := store.InsertMember(ctx, admin); err != nil {
		return fmt.Errorf("creating seed admin: %w", err)
	}
	log.Info("seed admin created", zap.String("email", seed.Email))
	return nil
}

// LoadDemo populates a development database through the engine so every
// demo balance is backed by real ledger movements. Call after Bootstrap;
// assumes the seed admin credentials.
func LoadDemo(ctx context.Context, engine *club.Engine, store club.Store, adminEmail string) error {
	admin, err := store.MemberByEmail(ctx, adminEmail)
	if err != nil {
		return err
	}
	if admin == nil {
		return fmt.Errorf("seed admin %s not found", adminEmail)
	}
	by := club.Principal{ID: admin.ID, MemberNumber: admin.MemberNumber, Role: admin.Role}

	members := []club.CreateMemberInput{
		{Name: "Carmen Ruiz", Email: "carmen@club.local", Password: "demo", MemberNumber: "SOC000010"},
		{Name: "Luis Ortega", Email: "luis@club.local", Password: "demo", MemberNumber: "SOC000011"},
		{Name: "Ana Soler", Email: "ana@club.local", Password: "demo", MemberNumber: "SOC000012", OpeningPoints: ledger.NewPointsFromInt(12)},
	}
	created := make([]*club.Member, 0, len(members))
	for _, in := range members {
		m, err := engine.CreateMember(ctx, by, in)
		if err != nil {
			return fmt.Errorf("creating demo member %s: %w", in.Email, err)
		}
		created = append(created, m)
	}

	products := []club.ProductInput{
		{Name: "Club polo shirt", PointsPrice: ledger.NewPointsFromInt(6), Stock: 3, Category: club.CategoryPublic},
		{Name: "Wine tasting for two", PointsPrice: ledger.NewPointsFromInt(15), Stock: 2, Category: club.CategoryMembers},
		{Name: "Engraved glass set", PointsPrice: ledger.NewPointsFromInt(9), Stock: 0, Category: club.CategoryPublic},
	}
	var polo *club.Product
	for _, in := range products {
		p, err := engine.CreateProduct(ctx, by, in)
		if err != nil {
			return fmt.Errorf("creating demo product %s: %w", in.Name, err)
		}
		if polo == nil {
			polo = p
		}
	}

	// Carmen buys 47€ at the bar (earns 4.70 points), Ana requests the polo
	// so the approval queue is not empty.
	if _, err := engine.RecordPhysicalPurchase(ctx, by, created[0].ID,
		decimal.NewFromFloat(47.00), "Marta", "Dinner menu"); err != nil {
		return fmt.Errorf("recording demo purchase: %w", err)
	}
	ana := club.Principal{ID: created[2].ID, MemberNumber: created[2].MemberNumber, Role: created[2].Role}
	if _, err := engine.RequestRedemption(ctx, ana, polo.ID); err != nil {
		return fmt.Errorf("creating demo redemption: %w", err)
	}
	return nil
}
