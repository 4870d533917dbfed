/*
catalog.go - Redeemable-goods catalog

Admin CRUD plus the visibility-filtered read. Stock edits here set an
absolute count; the decrement during approval is the engine's alone.
*/
package club

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clubhouse/points-engine/ledger"
)

// ProductInput is the create/update payload. Pointer fields in Patch
// semantics are handled by the caller-side merge in UpdateProduct.
type ProductInput struct {
	Name        string
	Description string
	PointsPrice ledger.Points
	Stock       int
	Category    Category
	ImageURL    string
}

func (in *ProductInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return &ledger.ValidationError{Field: "name", Detail: "required"}
	case in.PointsPrice.IsNegative():
		return &ledger.ValidationError{Field: "points_price", Detail: "must not be negative"}
	case in.Stock < 0:
		return &ledger.ValidationError{Field: "stock", Detail: "must not be negative"}
	case !in.Category.Valid():
		return &ledger.ValidationError{Field: "category", Detail: "must be public or members"}
	}
	return nil
}

// Catalog returns products visible to the caller. Anonymous visitors (zero
// Principal) see only the public category; members and admins see all.
func (e *Engine) Catalog(ctx context.Context, by Principal) ([]Product, error) {
	publicOnly := by.Role != RoleMember && by.Role != RoleAdmin
	return e.store.ListProducts(ctx, publicOnly)
}

// CreateProduct adds a catalog item. Admin only.
func (e *Engine) CreateProduct(ctx context.Context, by Principal, in ProductInput) (*Product, error) {
	if !by.IsAdmin() {
		return nil, ledger.ErrForbidden
	}
	if in.Category == "" {
		in.Category = CategoryPublic
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := e.now()
	product := Product{
		ID:          ledger.ProductID(uuid.NewString()),
		Name:        in.Name,
		Description: in.Description,
		PointsPrice: in.PointsPrice,
		Stock:       in.Stock,
		Category:    in.Category,
		ImageURL:    in.ImageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.InsertProduct(ctx, product); err != nil {
		return nil, err
	}
	return &product, nil
}

// ProductPatch carries optional field updates; nil means keep.
type ProductPatch struct {
	Name        *string
	Description *string
	PointsPrice *ledger.Points
	Stock       *int
	Category    *Category
	ImageURL    *string
}

// UpdateProduct applies a partial update. Admin only. Price changes do not
// touch pending redemptions: their cost snapshot is immutable.
func (e *Engine) UpdateProduct(ctx context.Context, by Principal, id ledger.ProductID, patch ProductPatch) (*Product, error) {
	if !by.IsAdmin() {
		return nil, ledger.ErrForbidden
	}
	product, err := e.store.ProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, &ledger.NotFoundError{Entity: "product", ID: string(id)}
	}

	if patch.Name != nil {
		product.Name = *patch.Name
	}
	if patch.Description != nil {
		product.Description = *patch.Description
	}
	if patch.PointsPrice != nil {
		product.PointsPrice = *patch.PointsPrice
	}
	if patch.Stock != nil {
		product.Stock = *patch.Stock
	}
	if patch.Category != nil {
		product.Category = *patch.Category
	}
	if patch.ImageURL != nil {
		product.ImageURL = *patch.ImageURL
	}

	in := ProductInput{
		Name:        product.Name,
		Description: product.Description,
		PointsPrice: product.PointsPrice,
		Stock:       product.Stock,
		Category:    product.Category,
		ImageURL:    product.ImageURL,
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	product.UpdatedAt = e.now()
	if err := e.store.UpdateProduct(ctx, *product); err != nil {
		return nil, err
	}
	return product, nil
}

// DeleteProduct removes a catalog item. Admin only. Products referenced by
// redemptions are protected by referential constraints.
func (e *Engine) DeleteProduct(ctx context.Context, by Principal, id ledger.ProductID) error {
	if !by.IsAdmin() {
		return ledger.ErrForbidden
	}
	return e.store.DeleteProduct(ctx, id)
}

// Product returns one catalog item, respecting visibility for anonymous
// callers.
func (e *Engine) Product(ctx context.Context, by Principal, id ledger.ProductID) (*Product, error) {
	product, err := e.store.ProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, &ledger.NotFoundError{Entity: "product", ID: string(id)}
	}
	if product.Category == CategoryMembers && by.Role != RoleMember && by.Role != RoleAdmin {
		return nil, &ledger.NotFoundError{Entity: "product", ID: string(id)}
	}
	return product, nil
}
