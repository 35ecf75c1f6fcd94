package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tetsy-ai/negotiation-platform/internal/middleware"
	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/internal/service"
	"github.com/tetsy-ai/negotiation-platform/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	sessions *service.SessionService
	logger   *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(sessions *service.SessionService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		sessions: sessions,
		logger:   log,
	}
}

// List handles GET /api/v1/negotiations/:id/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
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

	writeJSON(w, http.StatusOK, &model.ListMessagesResponse{
		Messages: neg.Messages,
		Total:    len(neg.Messages),
	})
}

// Send handles POST /api/v1/negotiations/:id/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)
	negotiationID := chi.URLParam(r, "id")

	if err := middleware.ValidateNegotiationID(negotiationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Verify the negotiation exists and the party participates in it.
	if _, err := h.sessions.Get(ctx, negotiationID, partyID); err != nil {
		writeAPIError(w, err)
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.sessions.SubmitMessage(ctx, negotiationID, partyID, middleware.GetRole(ctx), &req)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// MarkRead handles POST /api/v1/negotiations/:id/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)
	negotiationID := chi.URLParam(r, "id")

	if err := middleware.ValidateNegotiationID(negotiationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sessions.MarkRead(ctx, negotiationID, partyID, middleware.GetRole(ctx)); err != nil {
		writeAPIError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
