// Package dispatch delivers negotiation events to external consumers: the
// automated seller responder webhook and the JetStream change feed.
// Delivery is fire-and-forget with bounded retry; it never feeds back into
// negotiation state.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/pkg/logger"
)

// Dispatcher pushes one negotiation event to a consumer.
type Dispatcher interface {
	Notify(ctx context.Context, event *model.NegotiationEvent) error
}

// Multi fans an event out to several dispatchers. Each target is attempted
// regardless of the others' outcome.
type Multi []Dispatcher

// Notify implements Dispatcher.
func (m Multi) Notify(ctx context.Context, event *model.NegotiationEvent) error {
	var errs []error
	for _, d := range m {
		if err := d.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Retrying wraps a dispatcher with exponential backoff up to a bounded
// attempt count.
type Retrying struct {
	next        Dispatcher
	maxRetries  uint64
	maxInterval time.Duration
	logger      *logger.Logger
}

// WithRetry wraps next with bounded exponential backoff retry.
func WithRetry(next Dispatcher, maxRetries int, maxInterval time.Duration, log *logger.Logger) *Retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{
		next:        next,
		maxRetries:  uint64(maxRetries),
		maxInterval: maxInterval,
		logger:      log,
	}
}

// Notify implements Dispatcher. Failures between attempts are logged at
// warn; only exhaustion surfaces as an error.
func (r *Retrying) Notify(ctx context.Context, event *model.NegotiationEvent) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = r.maxInterval

	attempt := 0
	op := func() error {
		attempt++
		err := r.next.Notify(ctx, event)
		if err != nil {
			r.logger.Warn("dispatch attempt failed",
				zap.String("negotiation_id", event.NegotiationID),
				zap.String("event_type", string(event.Type)),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx))
}
