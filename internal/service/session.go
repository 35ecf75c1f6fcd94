// Package service provides the negotiation session service: the only
// component that drives the evaluator and the ledger together.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tetsy-ai/negotiation-platform/internal/evaluator"
	"github.com/tetsy-ai/negotiation-platform/internal/ledger"
	"github.com/tetsy-ai/negotiation-platform/internal/listing"
	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/internal/responder"
	"github.com/tetsy-ai/negotiation-platform/pkg/apierror"
	"github.com/tetsy-ai/negotiation-platform/pkg/logger"
	"github.com/tetsy-ai/negotiation-platform/pkg/metrics"
)

// Dispatcher pushes negotiation events to external consumers. Delivery
// failures never affect ledger state.
type Dispatcher interface {
	Notify(ctx context.Context, event *model.NegotiationEvent) error
}

// FeedPublisher mirrors appended messages onto the change feed for SSE
// consumers. Publishing is best-effort.
type FeedPublisher interface {
	PublishMessage(ctx context.Context, sellerID string, msg *model.Message) (uint64, error)
}

// SessionService orchestrates negotiation rounds end-to-end.
type SessionService struct {
	ledger     *ledger.Ledger
	directory  *listing.Directory
	policy     evaluator.Policy
	phraser    responder.Phraser
	dispatcher Dispatcher
	feed       FeedPublisher
	logger     *logger.Logger

	dispatchTimeout time.Duration

	// locks serializes rounds per negotiation. Entries are never removed:
	// negotiations are only destroyed by external retention.
	locks sync.Map // negotiationID -> *sync.Mutex

	inflight sync.WaitGroup
}

// Options configures optional session service collaborators.
type Options struct {
	Dispatcher      Dispatcher
	Feed            FeedPublisher
	DispatchTimeout time.Duration
}

// NewSessionService creates the session service.
func NewSessionService(
	led *ledger.Ledger,
	dir *listing.Directory,
	policy evaluator.Policy,
	phraser responder.Phraser,
	opts Options,
	log *logger.Logger,
) *SessionService {
	if phraser == nil {
		phraser = responder.Templates{}
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 30 * time.Second
	}
	return &SessionService{
		ledger:          led,
		directory:       dir,
		policy:          policy,
		phraser:         phraser,
		dispatcher:      opts.Dispatcher,
		feed:            opts.Feed,
		dispatchTimeout: opts.DispatchTimeout,
		logger:          log,
	}
}

// Start opens a negotiation with the buyer's initial offer, runs the first
// evaluation round, and dispatches the resulting event.
func (s *SessionService) Start(ctx context.Context, buyerID string, req *model.StartNegotiationRequest) (*model.Negotiation, error) {
	l, err := s.directory.Get(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if l.Status != model.ListingAvailable {
		return nil, apierror.ListingUnavailable("")
	}
	if buyerID == l.SellerID {
		return nil, apierror.InvalidInput("listing_id", "sellers cannot negotiate on their own listing")
	}

	result, err := s.policy.Evaluate(l.Price, req.OfferAmount)
	if err != nil {
		return nil, err
	}

	neg, err := s.ledger.Create(ctx, ledger.CreateParams{
		ListingID:    l.ID,
		ListingTitle: l.Title,
		BuyerID:      buyerID,
		SellerID:     l.SellerID,
		AskingPrice:  l.Price,
		OfferAmount:  req.OfferAmount,
		Message:      req.Message,
	})
	if err != nil {
		return nil, err
	}

	if neg.LastMessage != nil {
		s.publishMessages(neg.SellerID, []model.Message{*neg.LastMessage})
	}

	if err := s.respond(ctx, neg.ID, req.OfferAmount, result); err != nil {
		return nil, err
	}

	return s.ledger.Get(ctx, neg.ID)
}

// SubmitMessage appends a buyer or seller message. A buyer offer triggers a
// fresh evaluation round against the asking price.
func (s *SessionService) SubmitMessage(ctx context.Context, negotiationID, senderID string, role model.Role, req *model.SendMessageRequest) (*model.Message, error) {
	if req.Type == "" {
		req.Type = model.MessageTypeText
	}

	// Counters carry a status transition, so they only flow through
	// Respond or the automated round.
	if req.Type == model.MessageTypeCounterOffer {
		return nil, apierror.InvalidInput("type", "counter offers are submitted via respond")
	}

	if req.Type != model.MessageTypeOffer {
		msg, err := s.ledger.Append(ctx, negotiationID, ledger.AppendParams{
			SenderID:   senderID,
			SenderRole: role,
			Type:       req.Type,
			Amount:     req.OfferAmount,
			Content:    req.Content,
		})
		if err != nil {
			return nil, err
		}
		neg, err := s.ledger.Get(ctx, negotiationID)
		if err != nil {
			return nil, err
		}
		s.publishMessages(neg.SellerID, []model.Message{*msg})
		s.dispatchAsync(s.eventFor(neg, model.EventTypeMessage, neg.LastOfferAmount, nil, req.Content))
		return msg, nil
	}

	if role != model.RoleBuyer {
		return nil, apierror.InvalidInput("type", "only buyers submit offers; sellers counter via respond")
	}
	if req.OfferAmount == nil {
		return nil, apierror.InvalidInput("offer_amount", "offer amount is required for offers")
	}
	return s.submitOffer(ctx, negotiationID, senderID, *req.OfferAmount, req.Content)
}

// submitOffer runs one full buyer-offer round: append the offer, evaluate,
// and respond on the seller's behalf.
func (s *SessionService) submitOffer(ctx context.Context, negotiationID, buyerID string, amount decimal.Decimal, content string) (*model.Message, error) {
	neg, err := s.ledger.Get(ctx, negotiationID)
	if err != nil {
		return nil, err
	}
	if neg.Status.Terminal() {
		return nil, apierror.NegotiationTerminal("").WithState(neg)
	}

	// Evaluation is pure and the asking price is immutable on the thread,
	// so the decision can be computed before taking the round lock.
	result, err := s.policy.Evaluate(neg.AskingPrice, amount)
	if err != nil {
		return nil, err
	}

	if content == "" {
		content = fmt.Sprintf("I'd like to offer $%s for this item.", amount.StringFixed(2))
	}

	unlock := s.lockRound(negotiationID)
	msg, err := s.ledger.Append(ctx, negotiationID, ledger.AppendParams{
		SenderID:   buyerID,
		SenderRole: model.RoleBuyer,
		Type:       model.MessageTypeOffer,
		Amount:     &amount,
		Content:    content,
	})
	unlock()
	if err != nil {
		return nil, err
	}
	s.publishMessages(neg.SellerID, []model.Message{*msg})

	if err := s.respond(ctx, negotiationID, amount, result); err != nil {
		return nil, err
	}
	return msg, nil
}

// respond applies an evaluator decision: persists the transition and the
// seller-side message under the round lock, then dispatches the event
// outside it.
func (s *SessionService) respond(ctx context.Context, negotiationID string, offerAmount decimal.Decimal, result evaluator.Result) error {
	metrics.RecordDecision(string(result.Decision), result.Ratio.InexactFloat64())

	neg, err := s.ledger.Get(ctx, negotiationID)
	if err != nil {
		return err
	}

	// Phrase outside the lock; the amounts are already decided.
	var content string
	switch result.Decision {
	case evaluator.DecisionAccept:
		content = s.phraser.AcceptMessage(ctx, neg.ListingTitle, offerAmount.StringFixed(2))
	case evaluator.DecisionCounter:
		content = s.phraser.CounterMessage(ctx, neg.ListingTitle,
			offerAmount.StringFixed(2), result.CounterAmount.StringFixed(2))
	default:
		// Reject is never an automated outcome under the fixed policy.
		return nil
	}

	unlock := s.lockRound(negotiationID)

	var event *model.NegotiationEvent
	var published []model.Message

	switch result.Decision {
	case evaluator.DecisionAccept:
		// Reserve before the transition so a listing can never stay
		// available with an accepted negotiation against it.
		if err := s.directory.Reserve(ctx, neg.ListingID); err != nil {
			unlock()
			return err
		}
		_, msg, err := s.ledger.Resolve(ctx, negotiationID, model.NegotiationAccepted, &offerAmount, ledger.AppendParams{
			SenderID:   neg.SellerID,
			SenderRole: model.RoleSeller,
			Type:       model.MessageTypeText,
			Content:    content,
		})
		if err != nil {
			if relErr := s.directory.Release(ctx, neg.ListingID); relErr != nil {
				s.logger.Error("failed to release listing after aborted accept",
					zap.String("listing_id", neg.ListingID), zap.Error(relErr))
			}
			unlock()
			return err
		}
		published = append(published, *msg)
		event = s.eventFor(neg, model.EventTypeAccepted, offerAmount, nil, content)

	case evaluator.DecisionCounter:
		counter := result.CounterAmount
		_, msg, err := s.ledger.Resolve(ctx, negotiationID, model.NegotiationCountered, &counter, ledger.AppendParams{
			SenderID:   neg.SellerID,
			SenderRole: model.RoleSeller,
			Type:       model.MessageTypeCounterOffer,
			Amount:     &counter,
			Content:    content,
		})
		if err != nil {
			unlock()
			return err
		}
		published = append(published, *msg)
		event = s.eventFor(neg, model.EventTypeCounterSent, offerAmount, &counter, content)
	}

	unlock()

	s.publishMessages(neg.SellerID, published)
	s.dispatchAsync(event)
	return nil
}

// Accept records an explicit accept by either party and reserves the
// listing. At most one negotiation per listing can ever reach accepted.
func (s *SessionService) Accept(ctx context.Context, negotiationID, partyID string, role model.Role) (*model.Negotiation, error) {
	unlock := s.lockRound(negotiationID)

	neg, err := s.ledger.Get(ctx, negotiationID)
	if err != nil {
		unlock()
		return nil, err
	}

	if err := s.directory.Reserve(ctx, neg.ListingID); err != nil {
		unlock()
		return nil, err
	}

	content := fmt.Sprintf("Offer accepted at $%s.", neg.LastOfferAmount.StringFixed(2))
	updated, msg, err := s.ledger.Resolve(ctx, negotiationID, model.NegotiationAccepted, nil, ledger.AppendParams{
		SenderID:   partyID,
		SenderRole: role,
		Type:       model.MessageTypeText,
		Content:    content,
	})
	if err != nil {
		if relErr := s.directory.Release(ctx, neg.ListingID); relErr != nil {
			s.logger.Error("failed to release listing after aborted accept",
				zap.String("listing_id", neg.ListingID), zap.Error(relErr))
		}
		unlock()
		return nil, err
	}
	unlock()

	s.publishMessages(neg.SellerID, []model.Message{*msg})
	s.dispatchAsync(s.eventFor(neg, model.EventTypeAccepted, updated.LastOfferAmount, nil, content))

	return s.ledger.Get(ctx, negotiationID)
}

// Reject records an explicit reject by either party.
func (s *SessionService) Reject(ctx context.Context, negotiationID, partyID string, role model.Role) (*model.Negotiation, error) {
	neg, err := s.ledger.Get(ctx, negotiationID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockRound(negotiationID)
	updated, err := s.ledger.Transition(ctx, negotiationID, model.NegotiationRejected, nil)
	unlock()
	if err != nil {
		return nil, err
	}

	s.dispatchAsync(s.eventFor(neg, model.EventTypeRejected, updated.LastOfferAmount, nil, ""))
	return updated, nil
}

// Respond records a manual seller counter, used when the automated
// responder overrides the fixed policy with its own amount.
func (s *SessionService) Respond(ctx context.Context, negotiationID, sellerID string, req *model.SellerRespondRequest) (*model.Negotiation, error) {
	if req.CounterAmount.LessThanOrEqual(decimal.Zero) {
		return nil, apierror.InvalidInput("counter_amount", "counter amount must be positive")
	}

	neg, err := s.ledger.Get(ctx, negotiationID)
	if err != nil {
		return nil, err
	}

	content := req.Message
	if content == "" {
		content = fmt.Sprintf("I can do $%s", req.CounterAmount.StringFixed(2))
	}
	counter := req.CounterAmount

	unlock := s.lockRound(negotiationID)
	_, msg, err := s.ledger.Resolve(ctx, negotiationID, model.NegotiationCountered, &counter, ledger.AppendParams{
		SenderID:   sellerID,
		SenderRole: model.RoleSeller,
		Type:       model.MessageTypeCounterOffer,
		Amount:     &counter,
		Content:    content,
	})
	unlock()
	if err != nil {
		return nil, err
	}

	s.publishMessages(neg.SellerID, []model.Message{*msg})
	s.dispatchAsync(s.eventFor(neg, model.EventTypeCounterSent, neg.LastOfferAmount, &counter, content))

	return s.ledger.Get(ctx, negotiationID)
}

// Get returns a negotiation with its ordered messages, restricted to
// participants.
func (s *SessionService) Get(ctx context.Context, negotiationID, partyID string) (*model.Negotiation, error) {
	neg, err := s.ledger.Get(ctx, negotiationID)
	if err != nil {
		return nil, err
	}
	if neg.BuyerID != partyID && neg.SellerID != partyID {
		return nil, apierror.NotFound("negotiation not found")
	}
	return neg, nil
}

// List returns the party's negotiations, most recent activity first.
func (s *SessionService) List(ctx context.Context, partyID string, filter ledger.ListFilter, limit, offset int) *model.ListNegotiationsResponse {
	all := s.ledger.ListForParty(ctx, partyID, filter)

	total := len(all)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &model.ListNegotiationsResponse{
		Negotiations: all[start:end],
		Total:        total,
		HasMore:      end < total,
	}
}

// Archive hides a negotiation from the party's listings.
func (s *SessionService) Archive(ctx context.Context, negotiationID, partyID string) error {
	if _, err := s.Get(ctx, negotiationID, partyID); err != nil {
		return err
	}
	return s.ledger.Archive(ctx, negotiationID)
}

// MarkRead flags the thread as read for the party's role.
func (s *SessionService) MarkRead(ctx context.Context, negotiationID, partyID string, role model.Role) error {
	if _, err := s.Get(ctx, negotiationID, partyID); err != nil {
		return err
	}
	return s.ledger.MarkRead(ctx, negotiationID, role)
}

// UnreadCount counts unread messages for the party across negotiations.
func (s *SessionService) UnreadCount(ctx context.Context, partyID string, role model.Role) int {
	return s.ledger.UnreadCount(ctx, partyID, role)
}

// Relist resets a reserved or sold listing to available with a new price.
// It refuses while any non-terminal negotiation still references the
// listing: prices are immutable under active negotiation.
func (s *SessionService) Relist(ctx context.Context, listingID, sellerID string, price decimal.Decimal) (*model.Listing, error) {
	l, err := s.directory.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.SellerID != sellerID {
		return nil, apierror.NotFound("listing not found")
	}
	if s.ledger.HasActive(ctx, listingID) {
		return nil, apierror.ListingUnavailable("listing has active negotiations")
	}
	return s.directory.Relist(ctx, listingID, price)
}

// Drain waits for in-flight dispatches to finish. Used on shutdown and in
// tests.
func (s *SessionService) Drain() {
	s.inflight.Wait()
}

func (s *SessionService) lockRound(negotiationID string) func() {
	v, _ := s.locks.LoadOrStore(negotiationID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *SessionService) eventFor(neg *model.Negotiation, eventType model.EventType, offer decimal.Decimal, counter *decimal.Decimal, message string) *model.NegotiationEvent {
	return &model.NegotiationEvent{
		ID:            uuid.Must(uuid.NewV7()).String(),
		NegotiationID: neg.ID,
		ListingID:     neg.ListingID,
		SellerID:      neg.SellerID,
		Type:          eventType,
		AskingPrice:   neg.AskingPrice,
		OfferAmount:   offer,
		CounterAmount: counter,
		Message:       message,
		CreatedAt:     time.Now(),
	}
}

// dispatchAsync delivers an event outside the request path. Exhausted
// retries are logged as operational alerts; they never roll back state.
func (s *SessionService) dispatchAsync(event *model.NegotiationEvent) {
	if s.dispatcher == nil || event == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
		defer cancel()
		if err := s.dispatcher.Notify(ctx, event); err != nil {
			s.logger.Error("dispatch failed permanently",
				zap.String("negotiation_id", event.NegotiationID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
		}
	}()
}

// publishMessages mirrors appended messages onto the change feed,
// best-effort.
func (s *SessionService) publishMessages(sellerID string, msgs []model.Message) {
	if s.feed == nil || len(msgs) == 0 {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
		defer cancel()
		for i := range msgs {
			if _, err := s.feed.PublishMessage(ctx, sellerID, &msgs[i]); err != nil {
				s.logger.Warn("failed to publish message to feed",
					zap.String("negotiation_id", msgs[i].NegotiationID),
					zap.Error(err),
				)
			}
		}
	}()
}
