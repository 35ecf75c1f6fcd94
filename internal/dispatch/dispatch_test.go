package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/pkg/logger"
)

func testEvent() *model.NegotiationEvent {
	return &model.NegotiationEvent{
		ID:            "event-1",
		NegotiationID: "neg-1",
		ListingID:     "listing-1",
		SellerID:      "seller-1",
		Type:          model.EventTypeCounterSent,
		AskingPrice:   decimal.RequireFromString("50.00"),
		OfferAmount:   decimal.RequireFromString("40.00"),
		CreatedAt:     time.Now(),
	}
}

type flakyDispatcher struct {
	failures int
	calls    atomic.Int64
}

func (d *flakyDispatcher) Notify(ctx context.Context, event *model.NegotiationEvent) error {
	n := d.calls.Add(1)
	if int(n) <= d.failures {
		return errors.New("transient failure")
	}
	return nil
}

func TestWebhookNotify(t *testing.T) {
	var received atomic.Int64
	var gotType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var event model.NegotiationEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		gotType = string(event.Type)

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL, 5*time.Second)
	require.NoError(t, d.Notify(context.Background(), testEvent()))

	assert.Equal(t, int64(1), received.Load())
	assert.Equal(t, string(model.EventTypeCounterSent), gotType)
}

func TestWebhookNotifyNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL, 5*time.Second)
	err := d.Notify(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestWebhookNotifyUnreachable(t *testing.T) {
	d := NewWebhookDispatcher("http://127.0.0.1:1", 500*time.Millisecond)
	assert.Error(t, d.Notify(context.Background(), testEvent()))
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	next := &flakyDispatcher{failures: 2}
	r := WithRetry(next, 5, 10*time.Millisecond, logger.NewNop())

	err := r.Notify(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, int64(3), next.calls.Load())
}

func TestRetryExhaustion(t *testing.T) {
	next := &flakyDispatcher{failures: 100}
	r := WithRetry(next, 2, 10*time.Millisecond, logger.NewNop())

	err := r.Notify(context.Background(), testEvent())
	require.Error(t, err)
	// Initial attempt plus two retries.
	assert.Equal(t, int64(3), next.calls.Load())
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	next := &flakyDispatcher{failures: 100}
	r := WithRetry(next, 20, time.Minute, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Notify(ctx, testEvent())
	require.Error(t, err)
	assert.LessOrEqual(t, next.calls.Load(), int64(1))
}

func TestMultiAttemptsAllTargets(t *testing.T) {
	ok := &flakyDispatcher{}
	bad := &flakyDispatcher{failures: 100}

	m := Multi{bad, ok}
	err := m.Notify(context.Background(), testEvent())
	require.Error(t, err)

	// The healthy target still got the event.
	assert.Equal(t, int64(1), ok.calls.Load())
}
