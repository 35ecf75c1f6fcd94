package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tetsy-ai/negotiation-platform/internal/middleware"
	"github.com/tetsy-ai/negotiation-platform/internal/service"
	"github.com/tetsy-ai/negotiation-platform/internal/stream"
	"github.com/tetsy-ai/negotiation-platform/pkg/logger"
	"github.com/tetsy-ai/negotiation-platform/pkg/metrics"
)

// EventsHandler serves the per-negotiation SSE feed backed by the
// JetStream change log.
type EventsHandler struct {
	sessions *service.SessionService
	feed     *stream.Manager
	logger   *logger.Logger

	pollInterval time.Duration
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(sessions *service.SessionService, feed *stream.Manager, log *logger.Logger) *EventsHandler {
	return &EventsHandler{
		sessions:     sessions,
		feed:         feed,
		logger:       log,
		pollInterval: 2 * time.Second,
	}
}

// ReplayCompleteEvent marks the end of the historical replay.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	EventCount   int    `json:"event_count"`
}

// Stream handles GET /api/v1/negotiations/{id}/events
// Supports ?after_sequence=N for resuming from a specific point.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := middleware.GetPartyID(ctx)
	negotiationID := chi.URLParam(r, "id")

	if err := middleware.ValidateNegotiationID(negotiationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Only participants may subscribe.
	neg, err := h.sessions.Get(ctx, negotiationID, partyID)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	if h.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "event feed unavailable")
		return
	}

	var afterSequence uint64
	if seqStr := r.URL.Query().Get("after_sequence"); seqStr != "" {
		seq, err := strconv.ParseUint(seqStr, 10, 64)
		if err == nil {
			afterSequence = seq
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	done := ctx.Done()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"negotiation_id": negotiationID,
	})

	// Replay missed entries. after_sequence=0 replays the full thread.
	lastSequence := afterSequence
	var totalReplayed int

	for {
		entries, last, hasMore, err := h.feed.FetchRaw(ctx, neg.SellerID, negotiationID, lastSequence, 50)
		if err != nil {
			h.logger.Error("failed to replay feed entries",
				zap.Error(err),
				zap.String("negotiation_id", negotiationID),
			)
			sendSSEEvent(w, flusher, "error", map[string]string{
				"code":    "replay_error",
				"message": "failed to replay events",
			})
			break
		}

		for _, entry := range entries {
			select {
			case <-done:
				return
			default:
			}

			writeRawSSE(w, flusher, eventNameFromSubject(entry.Subject), entry.Data)
			totalReplayed++
		}

		if last > lastSequence {
			lastSequence = last
		}
		if !hasMore {
			break
		}
	}

	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{
		LastSequence: lastSequence,
		EventCount:   totalReplayed,
	})

	h.logger.Info("event replay complete",
		zap.String("negotiation_id", negotiationID),
		zap.Int("events_replayed", totalReplayed),
		zap.Uint64("last_sequence", lastSequence),
	)

	// Follow the feed and keep the connection alive.
	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			h.logger.Info("SSE client disconnected",
				zap.String("negotiation_id", negotiationID),
			)
			return

		case <-poll.C:
			entries, last, _, err := h.feed.FetchRaw(ctx, neg.SellerID, negotiationID, lastSequence, 50)
			if err != nil {
				h.logger.Warn("failed to fetch feed entries",
					zap.Error(err),
					zap.String("negotiation_id", negotiationID),
				)
				continue
			}
			for _, entry := range entries {
				writeRawSSE(w, flusher, eventNameFromSubject(entry.Subject), entry.Data)
			}
			if last > lastSequence {
				lastSequence = last
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]time.Time{
				"timestamp": time.Now().UTC(),
			})
		}
	}
}

// eventNameFromSubject maps a feed subject to an SSE event name.
// Subjects are neg.<seller>.<negotiation>.msg.<role> for thread
// messages and neg.<seller>.<negotiation>.event.<type> for
// negotiation events.
func eventNameFromSubject(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) < 5 {
		return "event"
	}
	switch parts[3] {
	case "msg":
		return "message"
	case "event":
		return parts[4]
	default:
		return "event"
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return writeRawSSE(w, flusher, event, jsonData)
}

func writeRawSSE(w http.ResponseWriter, flusher http.Flusher, event string, data []byte) error {
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()

	return nil
}
