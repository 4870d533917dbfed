/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Handlers do shape validation (parseable JSON, parseable decimals); the
  engine owns business validation. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/clubhouse/points-engine/club"
	"github.com/clubhouse/points-engine/ledger"
)

// =============================================================================
// AUTH
// =============================================================================

// LoginRequest carries member credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse returns the session token and the member's own record.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresIn int       `json:"expires_in"` // seconds
	Member    MemberDTO `json:"member"`
}

// RegisterRequest files a membership application.
type RegisterRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO represents a member in API responses. The password hash never
// leaves the server.
type MemberDTO struct {
	ID           string  `json:"id"`
	MemberNumber string  `json:"member_number"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Role         string  `json:"role"`
	Points       float64 `json:"points_current_year"`
	CreatedAt    string  `json:"created_at,omitempty"`
}

func toMemberDTO(m *club.Member) MemberDTO {
	return MemberDTO{
		ID:           string(m.ID),
		MemberNumber: m.MemberNumber,
		Name:         m.Name,
		Email:        m.Email,
		Role:         string(m.Role),
		Points:       m.PointsCurrentYear.Float64(),
		CreatedAt:    m.CreatedAt.Format(timeLayout),
	}
}

// CreateMemberRequest is the admin-facing member creation payload.
type CreateMemberRequest struct {
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	MemberNumber  string  `json:"member_number"`
	Role          string  `json:"role,omitempty"`
	OpeningPoints float64 `json:"opening_points,omitempty"`
}

// =============================================================================
// PRODUCTS
// =============================================================================

// ProductDTO represents a catalog item.
type ProductDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	PointsPrice float64 `json:"points_price"`
	Stock       int     `json:"stock"`
	Category    string  `json:"category"`
	ImageURL    string  `json:"image_url,omitempty"`
}

func toProductDTO(p *club.Product) ProductDTO {
	return ProductDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		Description: p.Description,
		PointsPrice: p.PointsPrice.Float64(),
		Stock:       p.Stock,
		Category:    string(p.Category),
		ImageURL:    p.ImageURL,
	}
}

// CreateProductRequest is the admin payload for a new catalog item.
type CreateProductRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	PointsPrice float64 `json:"points_price"`
	Stock       int     `json:"stock"`
	Category    string  `json:"category,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
}

// UpdateProductRequest carries a partial update; absent fields keep their
// current value.
type UpdateProductRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	PointsPrice *float64 `json:"points_price,omitempty"`
	Stock       *int     `json:"stock,omitempty"`
	Category    *string  `json:"category,omitempty"`
	ImageURL    *string  `json:"image_url,omitempty"`
}

// =============================================================================
// PURCHASES
// =============================================================================

// RecordPurchaseRequest records an in-person purchase for a member.
type RecordPurchaseRequest struct {
	MemberID   string  `json:"member_id"`
	EuroAmount float64 `json:"euro_amount"`
	Employee   string  `json:"employee"`
	Product    string  `json:"product"`
}

// PurchaseResponseDTO returns the awarded points and the new balance.
type PurchaseResponseDTO struct {
	PurchaseID    string  `json:"purchase_id"`
	MovementID    string  `json:"movement_id"`
	PointsAwarded float64 `json:"points_awarded"`
	NewBalance    float64 `json:"new_balance"`
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

// RequestRedemptionRequest asks to exchange points for a product.
type RequestRedemptionRequest struct {
	ProductID string `json:"product_id"`
}

// RejectRedemptionRequest optionally explains the rejection.
type RejectRedemptionRequest struct {
	Comment string `json:"comment,omitempty"`
}

// RedemptionDTO represents a redemption request.
type RedemptionDTO struct {
	ID           string  `json:"id"`
	MemberID     string  `json:"member_id"`
	MemberName   string  `json:"member_name,omitempty"`
	MemberNumber string  `json:"member_number,omitempty"`
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name,omitempty"`
	PointsCost   float64 `json:"points_cost"`
	State        string  `json:"state"`
	RequestedAt  string  `json:"requested_at"`
	DecidedAt    *string `json:"decided_at,omitempty"`
	AdminComment string  `json:"admin_comment,omitempty"`
}

func toRedemptionDTO(r *club.RedemptionRequest) RedemptionDTO {
	dto := RedemptionDTO{
		ID:           string(r.ID),
		MemberID:     string(r.MemberID),
		MemberName:   r.MemberName,
		MemberNumber: r.MemberNumber,
		ProductID:    string(r.ProductID),
		ProductName:  r.ProductName,
		PointsCost:   r.PointsCost.Float64(),
		State:        string(r.State),
		RequestedAt:  r.RequestedAt.Format(timeLayout),
		AdminComment: r.AdminComment,
	}
	if r.DecidedAt != nil {
		s := r.DecidedAt.Format(timeLayout)
		dto.DecidedAt = &s
	}
	return dto
}

// =============================================================================
// MOVEMENTS
// =============================================================================

// MovementDTO represents one points ledger entry.
type MovementDTO struct {
	ID           string  `json:"id"`
	Amount       float64 `json:"amount"`
	Reason       string  `json:"reason"`
	Description  string  `json:"description,omitempty"`
	PurchaseID   string  `json:"purchase_id,omitempty"`
	RedemptionID string  `json:"redemption_id,omitempty"`
	Year         int     `json:"year"`
	CreatedAt    string  `json:"created_at"`
}

func toMovementDTO(m ledger.Movement) MovementDTO {
	return MovementDTO{
		ID:           string(m.ID),
		Amount:       m.Amount.Float64(),
		Reason:       string(m.Reason),
		Description:  m.Description,
		PurchaseID:   string(m.PurchaseID),
		RedemptionID: string(m.RedemptionID),
		Year:         m.Year,
		CreatedAt:    m.CreatedAt.Format(timeLayout),
	}
}

// AdjustPointsRequest is a manual admin correction.
type AdjustPointsRequest struct {
	Delta       float64 `json:"delta"`
	Description string  `json:"description"`
}

// =============================================================================
// PRE-REGISTRATIONS
// =============================================================================

// PreRegistrationDTO represents a membership application.
type PreRegistrationDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	State        string `json:"state"`
	RegisteredAt string `json:"registered_at"`
}

func toPreRegistrationDTO(p club.PreRegistration) PreRegistrationDTO {
	return PreRegistrationDTO{
		ID:           p.ID,
		Name:         p.Name,
		Email:        p.Email,
		State:        string(p.State),
		RegisteredAt: p.RegisteredAt.Format(timeLayout),
	}
}

// ApprovalDTO returns the minted credentials after approving an application.
type ApprovalDTO struct {
	MemberID     string `json:"member_id"`
	MemberNumber string `json:"member_number"`
	TempPassword string `json:"temp_password"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
