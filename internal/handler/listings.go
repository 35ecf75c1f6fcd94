package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tetsy-ai/negotiation-platform/internal/listing"
	"github.com/tetsy-ai/negotiation-platform/internal/middleware"
	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/internal/service"
	"github.com/tetsy-ai/negotiation-platform/pkg/logger"
)

// ListingHandler handles listing endpoints.
type ListingHandler struct {
	directory *listing.Directory
	sessions  *service.SessionService
	logger    *logger.Logger
}

// NewListingHandler creates a new listing handler.
func NewListingHandler(dir *listing.Directory, sessions *service.SessionService, log *logger.Logger) *ListingHandler {
	return &ListingHandler{
		directory: dir,
		sessions:  sessions,
		logger:    log,
	}
}

// Create handles POST /api/v1/listings
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)

	if middleware.GetRole(ctx) != model.RoleSeller {
		writeError(w, http.StatusForbidden, "only sellers can publish listings")
		return
	}

	var req model.CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l, err := h.directory.Create(ctx, partyID, &req)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, l)
}

// List handles GET /api/v1/listings
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	listings := h.directory.List(r.Context())
	writeJSON(w, http.StatusOK, &model.ListListingsResponse{
		Listings: listings,
		Total:    len(listings),
	})
}

// Get handles GET /api/v1/listings/:id
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "id")

	if err := middleware.ValidateListingID(listingID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l, err := h.directory.Get(r.Context(), listingID)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, l)
}

// relistRequest is the body for re-listing with a new price.
type relistRequest struct {
	Price decimal.Decimal `json:"price"`
}

// Relist handles POST /api/v1/listings/:id/relist
func (h *ListingHandler) Relist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)
	listingID := chi.URLParam(r, "id")

	if middleware.GetRole(ctx) != model.RoleSeller {
		writeError(w, http.StatusForbidden, "only sellers can relist")
		return
	}
	if err := middleware.ValidateListingID(listingID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req relistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	l, err := h.sessions.Relist(ctx, listingID, partyID, req.Price)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, l)
}
