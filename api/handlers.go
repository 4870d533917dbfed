/*
handlers.go - HTTP handler implementations

PURPOSE:
  Translates HTTP requests into engine calls and engine results (or errors)
  back into JSON. No business rules live here: the engine validates, the
  handlers parse and map.

ERROR MAPPING:
  ledger.ErrValidation          -> 400
  club.ErrInvalidCredentials    -> 401
  ledger.ErrForbidden           -> 403
  ledger.ErrNotFound            -> 404
  ledger.ErrConflict            -> 409
  anything else                 -> 500

SEE ALSO:
  - server.go: Route wiring
  - dto.go: Request/response types
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clubhouse/points-engine/auth"
	"github.com/clubhouse/points-engine/club"
	"github.com/clubhouse/points-engine/ledger"
)

// Handler holds dependencies for all HTTP handlers.
type Handler struct {
	engine *club.Engine
	tokens *auth.Manager
	log    *zap.Logger
}

// NewHandler creates a handler with the given engine and token manager.
func NewHandler(engine *club.Engine, tokens *auth.Manager, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{engine: engine, tokens: tokens, log: log}
}

func principal(r *http.Request) club.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

// =============================================================================
// AUTH ENDPOINTS
// =============================================================================

// Login verifies credentials and mints a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	member, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	token, err := h.tokens.Issue(member)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresIn: int(h.tokens.TTL().Seconds()),
		Member:    toMemberDTO(member),
	})
}

// Register files a membership application. Anonymous endpoint.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	app, err := h.engine.Register(r.Context(), req.Name, req.Email)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPreRegistrationDTO(*app))
}

// =============================================================================
// CATALOG ENDPOINTS
// =============================================================================

// ListProducts returns the catalog. Anonymous callers see only the public
// category; the optional-auth middleware decides who the caller is.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.engine.Catalog(r.Context(), principal(r))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	dtos := make([]ProductDTO, 0, len(products))
	for i := range products {
		dtos = append(dtos, toProductDTO(&products[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns one catalog item, respecting visibility.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))
	product, err := h.engine.Product(r.Context(), principal(r), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(product))
}

// CreateProduct adds a catalog item. Admin only.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	product, err := h.engine.CreateProduct(r.Context(), principal(r), club.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		PointsPrice: ledger.NewPoints(req.PointsPrice),
		Stock:       req.Stock,
		Category:    club.Category(req.Category),
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(product))
}

// UpdateProduct applies a partial update. Admin only.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch := club.ProductPatch{
		Name:        req.Name,
		Description: req.Description,
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
	}
	if req.PointsPrice != nil {
		price := ledger.NewPoints(*req.PointsPrice)
		patch.PointsPrice = &price
	}
	if req.Category != nil {
		cat := club.Category(*req.Category)
		patch.Category = &cat
	}

	id := ledger.ProductID(chi.URLParam(r, "id"))
	product, err := h.engine.UpdateProduct(r.Context(), principal(r), id, patch)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(product))
}

// DeleteProduct removes a catalog item. Admin only.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))
	if err := h.engine.DeleteProduct(r.Context(), principal(r), id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// MEMBER ENDPOINTS
// =============================================================================

// GetProfile returns the calling member's own record.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	member, err := h.engine.Profile(r.Context(), principal(r))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(member))
}

// GetOwnMovements returns the caller's points history. ?year=N filters.
func (h *Handler) GetOwnMovements(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	h.writeMovements(w, r, p, p.ID)
}

// GetOwnRedemptions returns the caller's redemption requests.
func (h *Handler) GetOwnRedemptions(w http.ResponseWriter, r *http.Request) {
	redemptions, err := h.engine.RedemptionsForMember(r.Context(), principal(r))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionDTOs(redemptions))
}

// ListMembers returns all members. Admin only.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.engine.ListMembers(r.Context(), principal(r))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	dtos := make([]MemberDTO, 0, len(members))
	for i := range members {
		dtos = append(dtos, toMemberDTO(&members[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMember creates a member directly. Admin only.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	member, err := h.engine.CreateMember(r.Context(), principal(r), club.CreateMemberInput{
		Name:          req.Name,
		Email:         req.Email,
		Password:      req.Password,
		MemberNumber:  req.MemberNumber,
		Role:          club.Role(req.Role),
		OpeningPoints: ledger.NewPoints(req.OpeningPoints),
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(member))
}

// DeleteMember removes a member. Admin only.
func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))
	if err := h.engine.DeleteMember(r.Context(), principal(r), id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetMemberMovements returns any member's history. Admin only (enforced by
// the engine's self-or-admin rule).
func (h *Handler) GetMemberMovements(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))
	h.writeMovements(w, r, principal(r), id)
}

func (h *Handler) writeMovements(w http.ResponseWriter, r *http.Request, by club.Principal, memberID ledger.MemberID) {
	var year *int
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = &y
	}

	movements, err := h.engine.PointsHistory(r.Context(), by, memberID, year)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	dtos := make([]MovementDTO, 0, len(movements))
	for _, m := range movements {
		dtos = append(dtos, toMovementDTO(m))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AdjustPoints writes a manual correction movement. Admin only.
func (h *Handler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	var req AdjustPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id := ledger.MemberID(chi.URLParam(r, "id"))
	movement, err := h.engine.AdjustPoints(r.Context(), principal(r), id,
		ledger.NewPoints(req.Delta), req.Description)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(*movement))
}

// =============================================================================
// PURCHASE ENDPOINTS
// =============================================================================

// RecordPurchase records an in-person purchase and credits points. Admin only.
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req RecordPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.engine.RecordPhysicalPurchase(r.Context(), principal(r),
		ledger.MemberID(req.MemberID),
		decimal.NewFromFloat(req.EuroAmount),
		req.Employee, req.Product)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, PurchaseResponseDTO{
		PurchaseID:    string(result.PurchaseID),
		MovementID:    string(result.MovementID),
		PointsAwarded: result.PointsAwarded.Float64(),
		NewBalance:    result.NewBalance.Float64(),
	})
}

// =============================================================================
// REDEMPTION ENDPOINTS
// =============================================================================

// RequestRedemption creates a pending redemption for the caller.
func (h *Handler) RequestRedemption(w http.ResponseWriter, r *http.Request) {
	var req RequestRedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	redemption, err := h.engine.RequestRedemption(r.Context(), principal(r),
		ledger.ProductID(req.ProductID))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRedemptionDTO(redemption))
}

// ListPendingRedemptions lists the admin approval queue.
func (h *Handler) ListPendingRedemptions(w http.ResponseWriter, r *http.Request) {
	redemptions, err := h.engine.PendingRedemptions(r.Context(), principal(r))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionDTOs(redemptions))
}

// ApproveRedemption delivers a pending request. Admin only.
func (h *Handler) ApproveRedemption(w http.ResponseWriter, r *http.Request) {
	id := ledger.RedemptionID(chi.URLParam(r, "id"))
	redemption, err := h.engine.ApproveRedemption(r.Context(), principal(r), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionDTO(redemption))
}

// RejectRedemption rejects a pending request. Admin only.
func (h *Handler) RejectRedemption(w http.ResponseWriter, r *http.Request) {
	var req RejectRedemptionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	id := ledger.RedemptionID(chi.URLParam(r, "id"))
	redemption, err := h.engine.RejectRedemption(r.Context(), principal(r), id, req.Comment)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionDTO(redemption))
}

// =============================================================================
// PRE-REGISTRATION ENDPOINTS
// =============================================================================

// ListPendingPreRegistrations lists undecided applications. Admin only.
func (h *Handler) ListPendingPreRegistrations(w http.ResponseWriter, r *http.Request) {
	apps, err := h.engine.PendingPreRegistrations(r.Context(), principal(r))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	dtos := make([]PreRegistrationDTO, 0, len(apps))
	for _, a := range apps {
		dtos = append(dtos, toPreRegistrationDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApprovePreRegistration creates the member and returns the minted
// credentials. Admin only.
func (h *Handler) ApprovePreRegistration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.engine.ApprovePreRegistration(r.Context(), principal(r), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ApprovalDTO{
		MemberID:     string(result.MemberID),
		MemberNumber: result.MemberNumber,
		TempPassword: result.TempPassword,
	})
}

// RejectPreRegistration closes an application. Admin only.
func (h *Handler) RejectPreRegistration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.RejectPreRegistration(r.Context(), principal(r), id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// =============================================================================
// HELPERS
// =============================================================================

func toRedemptionDTOs(redemptions []club.RedemptionRequest) []RedemptionDTO {
	dtos := make([]RedemptionDTO, 0, len(redemptions))
	for i := range redemptions {
		dtos = append(dtos, toRedemptionDTO(&redemptions[i]))
	}
	return dtos
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, club.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
	case errors.Is(err, ledger.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", nil)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		h.log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
