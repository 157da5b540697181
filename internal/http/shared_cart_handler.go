package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/sharedcart-service/internal/activecart"
	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"github.com/fjod/go_cart/sharedcart-service/internal/idgen"
	"github.com/fjod/go_cart/sharedcart-service/internal/merge"
	"github.com/fjod/go_cart/sharedcart-service/internal/repository"
	"github.com/fjod/go_cart/sharedcart-service/internal/resolver"
	"github.com/fjod/go_cart/sharedcart-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Sharer is the part of service.SharingService the handlers call.
type Sharer interface {
	CreateAndShare(ctx context.Context, items []domain.CartItem) (*domain.CartSnapshot, error)
	Resolve(ctx context.Context, id string) (*domain.CartSnapshot, error)
	ImportResolved(ctx context.Context, snap *domain.CartSnapshot, policy merge.Policy) (*merge.Result, error)
}

type SharedCartHandler struct {
	sharer  Sharer
	cart    activecart.Store
	timeout time.Duration
	logger  *slog.Logger
}

func NewSharedCartHandler(sharer Sharer, cart activecart.Store, timeout time.Duration, logger *slog.Logger) *SharedCartHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SharedCartHandler{
		sharer:  sharer,
		cart:    cart,
		timeout: timeout,
		logger:  logger,
	}
}

type ShareRequestDTO struct {
	Items []domain.CartItem `json:"items"`
}

type ShareResponseDTO struct {
	CartID    string    `json:"cart_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SharedCartDTO struct {
	CartID    string                `json:"cart_id"`
	Items     []domain.SnapshotItem `json:"items"`
	Total     decimal.Decimal       `json:"total"`
	CreatedAt time.Time             `json:"created_at"`
	ExpiresAt time.Time             `json:"expires_at"`
}

type ImportRequestDTO struct {
	Policy string `json:"policy"`
}

type ImportResponseDTO struct {
	CartID        string            `json:"cart_id"`
	Policy        merge.Policy      `json:"policy"`
	Items         []domain.CartItem `json:"items"`
	SnapshotTotal decimal.Decimal   `json:"snapshot_total"`
	Persisted     bool              `json:"persisted"`
}

type ActiveCartDTO struct {
	Items []domain.CartItem `json:"items"`
	Total decimal.Decimal   `json:"total"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *SharedCartHandler) Share(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ShareRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	snap, err := h.sharer.CreateAndShare(ctx, req.Items)
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusCreated, ShareResponseDTO{
		CartID:    snap.ID,
		CreatedAt: snap.CreatedAt,
		ExpiresAt: snap.ExpiresAt,
	})
}

func (h *SharedCartHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	if !idgen.Valid(id) {
		respondNotFound(w)
		return
	}

	snap, err := h.sharer.Resolve(ctx, id)
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, SharedCartDTO{
		CartID:    snap.ID,
		Items:     snap.Items,
		Total:     snap.Total(),
		CreatedAt: snap.CreatedAt,
		ExpiresAt: snap.ExpiresAt,
	})
}

func (h *SharedCartHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	if !idgen.Valid(id) {
		respondNotFound(w)
		return
	}

	var req ImportRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	policy, err := merge.ParsePolicy(req.Policy)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_policy", "policy must be one of replace, append, view")
		return
	}

	// The import always works on a freshly resolved snapshot.
	snap, err := h.sharer.Resolve(ctx, id)
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	result, err := h.sharer.ImportResolved(ctx, snap, policy)
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, ImportResponseDTO{
		CartID:        snap.ID,
		Policy:        result.Policy,
		Items:         result.Items,
		SnapshotTotal: result.SnapshotTotal,
		Persisted:     result.Persisted,
	})
}

func (h *SharedCartHandler) GetActiveCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.cart.Load(ctx)
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, ActiveCartDTO{Items: items, Total: domain.Total(items)})
}

func (h *SharedCartHandler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		respondError(w, http.StatusBadRequest, "invalid_cart", ve.Error())
	case errors.Is(err, service.ErrShareInProgress):
		respondError(w, http.StatusConflict, "share_in_progress", "a share is already in progress")
	// an unreachable store looks the same as a missing cart to the recipient
	case errors.Is(err, resolver.ErrNotFound), errors.Is(err, resolver.ErrUnavailable):
		respondNotFound(w)
	case errors.Is(err, merge.ErrUnknownPolicy):
		respondError(w, http.StatusBadRequest, "invalid_policy", err.Error())
	case errors.Is(err, repository.ErrStoreUnavailable), errors.Is(err, service.ErrIDExhausted):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "shared cart store is unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		h.logger.ErrorContext(ctx, "unhandled shared cart error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondNotFound(w http.ResponseWriter) {
	respondError(w, http.StatusNotFound, "not_found", "cart not found")
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
