// Package ledger owns negotiation and message records. Every write enforces
// the thread invariants: messages are append-only and ordered, status moves
// only forward, and last_offer_amount tracks the most recent offer or
// counter-offer message.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/pkg/apierror"
	"github.com/tetsy-ai/negotiation-platform/pkg/metrics"
)

// entry holds one negotiation and its ordered message history. Each entry
// carries its own mutex: operations on different negotiations never contend.
type entry struct {
	mu       sync.Mutex
	neg      model.Negotiation
	messages []model.Message
}

// Ledger is the in-memory source of truth for negotiations.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		entries: make(map[string]*entry),
	}
}

// CreateParams are the inputs to open a new negotiation.
type CreateParams struct {
	ListingID    string
	ListingTitle string
	BuyerID      string
	SellerID     string
	AskingPrice  decimal.Decimal
	OfferAmount  decimal.Decimal
	Message      string
}

// Create opens a negotiation in pending status with its first offer message.
// The caller is responsible for having verified listing availability.
func (l *Ledger) Create(ctx context.Context, params CreateParams) (*model.Negotiation, error) {
	if params.OfferAmount.LessThanOrEqual(decimal.Zero) {
		return nil, apierror.InvalidInput("offer_amount", "offer amount must be positive")
	}
	if params.BuyerID == "" {
		return nil, apierror.InvalidInput("buyer_id", "buyer id cannot be empty")
	}
	if params.SellerID == "" {
		return nil, apierror.InvalidInput("seller_id", "seller id cannot be empty")
	}

	now := time.Now()
	content := params.Message
	if content == "" {
		content = fmt.Sprintf("I'd like to offer $%s for this item.", params.OfferAmount.StringFixed(2))
	}

	amount := params.OfferAmount
	neg := model.Negotiation{
		ID:              uuid.Must(uuid.NewV7()).String(),
		ListingID:       params.ListingID,
		ListingTitle:    params.ListingTitle,
		BuyerID:         params.BuyerID,
		SellerID:        params.SellerID,
		Status:          model.NegotiationPending,
		AskingPrice:     params.AskingPrice,
		LastOfferAmount: amount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	first := model.Message{
		ID:            uuid.Must(uuid.NewV7()).String(),
		NegotiationID: neg.ID,
		SenderID:      params.BuyerID,
		SenderRole:    model.RoleBuyer,
		Type:          model.MessageTypeOffer,
		OfferAmount:   &amount,
		Content:       content,
		ReadByBuyer:   true,
		CreatedAt:     now,
	}

	e := &entry{
		neg:      neg,
		messages: []model.Message{first},
	}

	l.mu.Lock()
	l.entries[neg.ID] = e
	l.mu.Unlock()

	metrics.NegotiationsTotal.Inc()
	metrics.MessagesTotal.WithLabelValues(string(first.SenderRole), string(first.Type)).Inc()

	return l.snapshot(e), nil
}

// AppendParams are the inputs to append a message to a negotiation.
type AppendParams struct {
	SenderID   string
	SenderRole model.Role
	Type       model.MessageType
	Amount     *decimal.Decimal
	Content    string
}

// Append adds a message to a negotiation's history. Offer and counter-offer
// messages update last_offer_amount. Appending to a terminal negotiation
// fails with NegotiationTerminal and leaves the history unchanged.
func (l *Ledger) Append(ctx context.Context, negotiationID string, params AppendParams) (*model.Message, error) {
	if err := validateAppend(params); err != nil {
		return nil, err
	}

	e, err := l.entry(negotiationID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.neg.Status.Terminal() {
		return nil, apierror.NegotiationTerminal("").WithState(l.snapshotLocked(e))
	}

	msg := newMessage(negotiationID, params)

	e.messages = append(e.messages, msg)
	if params.Type.RequiresAmount() {
		e.neg.LastOfferAmount = *params.Amount
	}
	e.neg.UpdatedAt = msg.CreatedAt

	metrics.MessagesTotal.WithLabelValues(string(msg.SenderRole), string(msg.Type)).Inc()

	copied := msg
	return &copied, nil
}

// Resolve moves a negotiation to a new status and appends the message that
// carries the outcome, both in one critical section. Readers never observe
// the transition (or its last_offer_amount update) without the message, and
// a refused transition appends nothing.
func (l *Ledger) Resolve(ctx context.Context, negotiationID string, newStatus model.NegotiationStatus, amount *decimal.Decimal, params AppendParams) (*model.Negotiation, *model.Message, error) {
	if !newStatus.Valid() {
		return nil, nil, apierror.InvalidInput("status", "unknown negotiation status")
	}
	if err := validateAppend(params); err != nil {
		return nil, nil, err
	}

	e, err := l.entry(negotiationID)
	if err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.neg.Status
	if current.Terminal() {
		return nil, nil, apierror.NegotiationTerminal("").WithState(l.snapshotLocked(e))
	}
	if !current.CanTransitionTo(newStatus) {
		return nil, nil, apierror.InvalidTransition(
			fmt.Sprintf("invalid transition %s -> %s", current, newStatus))
	}

	msg := newMessage(negotiationID, params)

	e.messages = append(e.messages, msg)
	e.neg.Status = newStatus
	if params.Type.RequiresAmount() {
		e.neg.LastOfferAmount = *params.Amount
	}
	if amount != nil {
		e.neg.LastOfferAmount = *amount
	}
	e.neg.UpdatedAt = msg.CreatedAt

	metrics.RecordTransition(string(current), string(newStatus))
	metrics.MessagesTotal.WithLabelValues(string(msg.SenderRole), string(msg.Type)).Inc()

	copied := msg
	return l.snapshotLocked(e), &copied, nil
}

func validateAppend(params AppendParams) error {
	if !params.SenderRole.Valid() {
		return apierror.InvalidInput("sender_role", "sender role must be buyer or seller")
	}
	if !params.Type.Valid() {
		return apierror.InvalidInput("type", "unknown message type")
	}
	if params.Type.RequiresAmount() {
		if params.Amount == nil {
			return apierror.InvalidInput("offer_amount", "offer amount is required for offers")
		}
		if params.Amount.LessThanOrEqual(decimal.Zero) {
			return apierror.InvalidInput("offer_amount", "offer amount must be positive")
		}
	}
	return nil
}

func newMessage(negotiationID string, params AppendParams) model.Message {
	return model.Message{
		ID:            uuid.Must(uuid.NewV7()).String(),
		NegotiationID: negotiationID,
		SenderID:      params.SenderID,
		SenderRole:    params.SenderRole,
		Type:          params.Type,
		OfferAmount:   params.Amount,
		Content:       params.Content,
		ReadByBuyer:   params.SenderRole == model.RoleBuyer,
		ReadBySeller:  params.SenderRole == model.RoleSeller,
		CreatedAt:     time.Now(),
	}
}

// Transition moves a negotiation to a new status along the forward-only
// graph. A disallowed edge fails with InvalidTransition; any edge out of a
// terminal state fails with NegotiationTerminal.
func (l *Ledger) Transition(ctx context.Context, negotiationID string, newStatus model.NegotiationStatus, amount *decimal.Decimal) (*model.Negotiation, error) {
	if !newStatus.Valid() {
		return nil, apierror.InvalidInput("status", "unknown negotiation status")
	}

	e, err := l.entry(negotiationID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.neg.Status
	if current.Terminal() {
		return nil, apierror.NegotiationTerminal("").WithState(l.snapshotLocked(e))
	}
	if !current.CanTransitionTo(newStatus) {
		return nil, apierror.InvalidTransition(
			fmt.Sprintf("invalid transition %s -> %s", current, newStatus))
	}

	e.neg.Status = newStatus
	if amount != nil {
		e.neg.LastOfferAmount = *amount
	}
	e.neg.UpdatedAt = time.Now()

	metrics.RecordTransition(string(current), string(newStatus))

	return l.snapshotLocked(e), nil
}

// Get retrieves a negotiation with its ordered message history.
func (l *Ledger) Get(ctx context.Context, negotiationID string) (*model.Negotiation, error) {
	e, err := l.entry(negotiationID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	neg := *l.snapshotLocked(e)
	neg.Messages = make([]model.Message, len(e.messages))
	copy(neg.Messages, e.messages)
	return &neg, nil
}

// ListFilter narrows ListForParty results.
type ListFilter struct {
	Role            model.Role
	Status          model.NegotiationStatus
	IncludeArchived bool
}

// ListForParty returns summaries of the negotiations a party participates
// in, most recent activity first.
func (l *Ledger) ListForParty(ctx context.Context, partyID string, filter ListFilter) []model.Negotiation {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	var out []model.Negotiation
	for _, e := range entries {
		e.mu.Lock()
		match := false
		switch filter.Role {
		case model.RoleBuyer:
			match = e.neg.BuyerID == partyID
		case model.RoleSeller:
			match = e.neg.SellerID == partyID
		default:
			match = e.neg.BuyerID == partyID || e.neg.SellerID == partyID
		}
		if match && !filter.IncludeArchived && e.neg.Archived {
			match = false
		}
		if match && filter.Status != "" && e.neg.Status != filter.Status {
			match = false
		}
		if match {
			out = append(out, *l.snapshotLocked(e))
		}
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// HasActive reports whether any non-terminal negotiation references the
// listing. Listing prices are immutable while this holds.
func (l *Ledger) HasActive(ctx context.Context, listingID string) bool {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		active := e.neg.ListingID == listingID && !e.neg.Status.Terminal()
		e.mu.Unlock()
		if active {
			return true
		}
	}
	return false
}

// Archive hides a negotiation from party listings. It does not mutate
// status or history, so it is permitted on terminal negotiations.
func (l *Ledger) Archive(ctx context.Context, negotiationID string) error {
	e, err := l.entry(negotiationID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.neg.Archived = true
	e.mu.Unlock()
	return nil
}

// MarkRead flags every message in the negotiation as read by the given
// role. Read flags are bookkeeping, not part of the append-only history.
func (l *Ledger) MarkRead(ctx context.Context, negotiationID string, role model.Role) error {
	if !role.Valid() {
		return apierror.InvalidInput("role", "role must be buyer or seller")
	}

	e, err := l.entry(negotiationID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.messages {
		if role == model.RoleBuyer {
			e.messages[i].ReadByBuyer = true
		} else {
			e.messages[i].ReadBySeller = true
		}
	}
	return nil
}

// UnreadCount counts messages not yet read by the party in the given role,
// across all of that party's negotiations.
func (l *Ledger) UnreadCount(ctx context.Context, partyID string, role model.Role) int {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	count := 0
	for _, e := range entries {
		e.mu.Lock()
		participant := (role == model.RoleBuyer && e.neg.BuyerID == partyID) ||
			(role == model.RoleSeller && e.neg.SellerID == partyID)
		if participant {
			for _, m := range e.messages {
				if role == model.RoleBuyer && !m.ReadByBuyer {
					count++
				}
				if role == model.RoleSeller && !m.ReadBySeller {
					count++
				}
			}
		}
		e.mu.Unlock()
	}
	return count
}

func (l *Ledger) entry(negotiationID string) (*entry, error) {
	l.mu.RLock()
	e, exists := l.entries[negotiationID]
	l.mu.RUnlock()

	if !exists {
		return nil, apierror.NotFound("negotiation not found")
	}
	return e, nil
}

// snapshot copies the negotiation summary under the entry lock.
func (l *Ledger) snapshot(e *entry) *model.Negotiation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return l.snapshotLocked(e)
}

// snapshotLocked copies the negotiation summary. Callers hold e.mu.
func (l *Ledger) snapshotLocked(e *entry) *model.Negotiation {
	neg := e.neg
	neg.MessageCount = len(e.messages)
	if len(e.messages) > 0 {
		last := e.messages[len(e.messages)-1]
		neg.LastMessage = &last
	}
	return &neg
}
