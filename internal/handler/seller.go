package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tetsy-ai/negotiation-platform/internal/ledger"
	"github.com/tetsy-ai/negotiation-platform/internal/middleware"
	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/internal/service"
	"github.com/tetsy-ai/negotiation-platform/pkg/logger"
)

// SellerHandler handles seller-side endpoints, including the callbacks the
// automated responder uses to continue a negotiation.
type SellerHandler struct {
	sessions *service.SessionService
	logger   *logger.Logger
}

// NewSellerHandler creates a new seller handler.
func NewSellerHandler(sessions *service.SessionService, log *logger.Logger) *SellerHandler {
	return &SellerHandler{
		sessions: sessions,
		logger:   log,
	}
}

// ListNegotiations handles GET /api/v1/seller/negotiations?status=
func (h *SellerHandler) ListNegotiations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)

	filter := ledger.ListFilter{Role: model.RoleSeller}
	if status := r.URL.Query().Get("status"); status != "" && status != "all" {
		s := model.NegotiationStatus(status)
		if !s.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		filter.Status = s
	}

	resp := h.sessions.List(ctx, partyID, filter, 100, 0)
	writeJSON(w, http.StatusOK, resp)
}

// Respond handles POST /api/v1/seller/negotiations/:id/respond, a manual
// seller counter at an explicit amount.
func (h *SellerHandler) Respond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)
	negotiationID := chi.URLParam(r, "id")

	if middleware.GetRole(ctx) != model.RoleSeller {
		writeError(w, http.StatusForbidden, "only sellers can respond to offers")
		return
	}
	if err := middleware.ValidateNegotiationID(negotiationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.sessions.Get(ctx, negotiationID, partyID); err != nil {
		writeAPIError(w, err)
		return
	}

	var req model.SellerRespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	neg, err := h.sessions.Respond(ctx, negotiationID, partyID, &req)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, neg)
}

// UnreadCount handles GET /api/v1/seller/unread-count
func (h *SellerHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)

	count := h.sessions.UnreadCount(ctx, partyID, middleware.GetRole(ctx))
	writeJSON(w, http.StatusOK, &model.UnreadCountResponse{UnreadCount: count})
}
