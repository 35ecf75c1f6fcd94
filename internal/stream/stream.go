package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/tetsy-ai/negotiation-platform/internal/model"
)

const (
	// StreamName is the name of the negotiations change feed.
	StreamName = "NEGOTIATIONS"

	// SubjectPrefix is the prefix for all negotiation subjects.
	SubjectPrefix = "neg"
)

// Manager handles JetStream stream operations for the negotiation feed.
type Manager struct {
	client *Client
}

// NewManager creates a new stream manager.
func NewManager(client *Client) *Manager {
	return &Manager{client: client}
}

// EnsureStream ensures the negotiations stream exists with proper configuration.
func (m *Manager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	// Check if stream exists
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	// Create stream. Deletes are denied: the feed mirrors the append-only
	// message history.
	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Negotiation messages and lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// MessageSubject returns the subject for a negotiation message.
func MessageSubject(sellerID, negotiationID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, sellerID, negotiationID, role)
}

// EventSubject returns the subject for a lifecycle event.
func EventSubject(sellerID, negotiationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, sellerID, negotiationID, eventType)
}

// NegotiationFilter returns the filter subject for everything in one
// negotiation.
func NegotiationFilter(sellerID, negotiationID string) string {
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, sellerID, negotiationID)
}

// PublishMessage publishes a negotiation message to the feed.
func (m *Manager) PublishMessage(ctx context.Context, sellerID string, msg *model.Message) (uint64, error) {
	subject := MessageSubject(sellerID, msg.NegotiationID, msg.SenderRole)

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish message: %w", err)
	}

	return ack.Sequence, nil
}

// PublishEvent publishes a negotiation lifecycle event to the feed.
func (m *Manager) PublishEvent(ctx context.Context, event *model.NegotiationEvent) (uint64, error) {
	subject := EventSubject(event.SellerID, event.NegotiationID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	return ack.Sequence, nil
}

// FetchRaw retrieves raw feed entries for a negotiation starting after a
// sequence. Consumers decode per subject (msg vs event).
func (m *Manager) FetchRaw(ctx context.Context, sellerID, negotiationID string, afterSequence uint64, limit int) ([]RawEntry, uint64, bool, error) {
	js := m.client.JetStream()

	filterSubject := NegotiationFilter(sellerID, negotiationID)

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}

	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := js.CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	var entries []RawEntry
	var lastSequence uint64

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch entries: %w", err)
	}

	for msg := range batch.Messages() {
		e := RawEntry{
			Subject: msg.Subject(),
			Data:    msg.Data(),
		}
		if meta, err := msg.Metadata(); err == nil {
			e.Sequence = meta.Sequence.Stream
			lastSequence = meta.Sequence.Stream
		}
		entries = append(entries, e)
	}

	if batch.Error() != nil && batch.Error() != context.DeadlineExceeded {
		return nil, 0, false, fmt.Errorf("batch error: %w", batch.Error())
	}

	hasMore := len(entries) == limit

	return entries, lastSequence, hasMore, nil
}

// RawEntry is one undecoded feed entry.
type RawEntry struct {
	Subject  string
	Data     []byte
	Sequence uint64
}
