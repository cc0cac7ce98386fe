package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/maltedev/storefront-sku-lookup/internal/api/middleware"
	"github.com/maltedev/storefront-sku-lookup/internal/scraper"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	scraper   scraper.Scraper
	maxBatch  int
	store     middleware.RateLimitStore
	validator *validator.Validate
	logger    *slog.Logger
}

func NewHandlers(s scraper.Scraper, maxBatch int, store middleware.RateLimitStore, logger *slog.Logger) *Handlers {
	return &Handlers{
		scraper:   s,
		maxBatch:  maxBatch,
		store:     store,
		validator: validator.New(),
		logger:    logger.With("component", "handlers"),
	}
}

// SearchRequest is the body of POST /search. Identifiers are looked up as
// sent; a blank one gets its own outcome like any other.
type SearchRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

// Index describes the service.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"service": "storefront-sku-lookup",
		"status":  "ok",
		"endpoints": []string{
			"GET /health",
			"GET /search?id=<sku>&id=<sku>",
			"POST /search {\"ids\": [\"<sku>\"]}",
			"GET /buscar?skus=<sku>&skus=<sku>",
		},
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if h.store != nil && !h.store.IsHealthy(r.Context()) {
		resp["status"] = "degraded"
		resp["rate_limit_store"] = "unavailable"
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// SearchQuery handles GET /search?id=...
func (h *Handlers) SearchQuery(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, r.URL.Query()["id"])
}

// Buscar handles GET /buscar?skus=..., kept for existing integrations.
func (h *Handlers) Buscar(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, r.URL.Query()["skus"])
}

// SearchBody handles POST /search.
func (h *Handlers) SearchBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.lookup(w, r, req.IDs)
}

func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request, ids []string) {
	ids, err := h.validateIDs(ids)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batchID := uuid.NewString()
	w.Header().Set("X-Batch-ID", batchID)
	ctx := scraper.WithBatchID(r.Context(), batchID)

	outcomes, err := h.scraper.LookupBatch(ctx, ids)
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		h.logger.Warn("lookup timed out", "batch_id", batchID, "identifiers", len(ids))
		h.respondError(w, http.StatusGatewayTimeout, "lookup timed out")
		return
	}
	if err != nil {
		h.logger.Error("lookup failed", "batch_id", batchID, "error", err)
		if errors.Is(err, scraper.ErrSessionUnavailable) {
			h.respondError(w, http.StatusServiceUnavailable, "browser unavailable")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	h.respondJSON(w, http.StatusOK, outcomes)
}

func (h *Handlers) validateIDs(ids []string) ([]string, error) {
	if err := h.validator.Struct(SearchRequest{IDs: ids}); err != nil {
		return nil, errors.New("at least one identifier is required")
	}

	if h.maxBatch > 0 && len(ids) > h.maxBatch {
		return nil, fmt.Errorf("too many identifiers: %d (max %d)", len(ids), h.maxBatch)
	}

	return ids, nil
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
