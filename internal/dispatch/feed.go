package dispatch

import (
	"context"

	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/internal/stream"
	"github.com/tetsy-ai/negotiation-platform/pkg/metrics"
)

// FeedDispatcher publishes negotiation events to the JetStream change feed,
// where SSE consumers pick them up.
type FeedDispatcher struct {
	manager *stream.Manager
}

// NewFeedDispatcher creates a change-feed dispatcher.
func NewFeedDispatcher(manager *stream.Manager) *FeedDispatcher {
	return &FeedDispatcher{manager: manager}
}

// Notify implements Dispatcher.
func (d *FeedDispatcher) Notify(ctx context.Context, event *model.NegotiationEvent) (err error) {
	defer func() { metrics.RecordDispatch("feed", err) }()

	seq, err := d.manager.PublishEvent(ctx, event)
	if err != nil {
		return err
	}
	event.Sequence = seq
	return nil
}
