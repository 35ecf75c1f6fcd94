package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tetsy-ai/negotiation-platform/internal/ledger"
	"github.com/tetsy-ai/negotiation-platform/internal/middleware"
	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/internal/service"
	"github.com/tetsy-ai/negotiation-platform/pkg/logger"
)

// NegotiationHandler handles negotiation endpoints.
type NegotiationHandler struct {
	sessions *service.SessionService
	logger   *logger.Logger
}

// NewNegotiationHandler creates a new negotiation handler.
func NewNegotiationHandler(sessions *service.SessionService, log *logger.Logger) *NegotiationHandler {
	return &NegotiationHandler{
		sessions: sessions,
		logger:   log,
	}
}

// Create handles POST /api/v1/negotiations
func (h *NegotiationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)

	if middleware.GetRole(ctx) != model.RoleBuyer {
		writeError(w, http.StatusForbidden, "only buyers can start negotiations")
		return
	}

	var req model.StartNegotiationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateListingID(req.ListingID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	neg, err := h.sessions.Start(ctx, partyID, &req)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, neg)
}

// List handles GET /api/v1/negotiations
func (h *NegotiationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)

	limit := 20
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	filter := ledger.ListFilter{Role: middleware.GetRole(ctx)}
	resp := h.sessions.List(ctx, partyID, filter, limit, offset)

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/negotiations/:id
func (h *NegotiationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)
	negotiationID := chi.URLParam(r, "id")

	if err := middleware.ValidateNegotiationID(negotiationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	neg, err := h.sessions.Get(ctx, negotiationID, partyID)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, neg)
}

// Accept handles POST /api/v1/negotiations/:id/accept
func (h *NegotiationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)
	negotiationID := chi.URLParam(r, "id")

	if err := middleware.ValidateNegotiationID(negotiationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.sessions.Get(ctx, negotiationID, partyID); err != nil {
		writeAPIError(w, err)
		return
	}

	neg, err := h.sessions.Accept(ctx, negotiationID, partyID, middleware.GetRole(ctx))
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, neg)
}

// Reject handles POST /api/v1/negotiations/:id/reject
func (h *NegotiationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)
	negotiationID := chi.URLParam(r, "id")

	if err := middleware.ValidateNegotiationID(negotiationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.sessions.Get(ctx, negotiationID, partyID); err != nil {
		writeAPIError(w, err)
		return
	}

	neg, err := h.sessions.Reject(ctx, negotiationID, partyID, middleware.GetRole(ctx))
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, neg)
}

// Archive handles POST /api/v1/negotiations/:id/archive
func (h *NegotiationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)
	negotiationID := chi.URLParam(r, "id")

	if err := middleware.ValidateNegotiationID(negotiationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sessions.Archive(ctx, negotiationID, partyID); err != nil {
		writeAPIError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
