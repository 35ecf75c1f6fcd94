package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// NegotiationStatus represents the lifecycle state of a negotiation.
type NegotiationStatus string

const (
	NegotiationPending   NegotiationStatus = "pending"
	NegotiationCountered NegotiationStatus = "countered"
	NegotiationAccepted  NegotiationStatus = "accepted"
	NegotiationRejected  NegotiationStatus = "rejected"
)

// allowedTransitions is the forward-only state graph. Terminal states have
// no outgoing edges. countered -> countered covers repeated offer rounds.
var allowedTransitions = map[NegotiationStatus][]NegotiationStatus{
	NegotiationPending:   {NegotiationCountered, NegotiationAccepted, NegotiationRejected},
	NegotiationCountered: {NegotiationCountered, NegotiationAccepted, NegotiationRejected},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s NegotiationStatus) CanTransitionTo(next NegotiationStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status permits no further mutation.
func (s NegotiationStatus) Terminal() bool {
	return s == NegotiationAccepted || s == NegotiationRejected
}

// Valid reports whether s is a known status value.
func (s NegotiationStatus) Valid() bool {
	switch s {
	case NegotiationPending, NegotiationCountered, NegotiationAccepted, NegotiationRejected:
		return true
	}
	return false
}

// Negotiation represents a buyer-listing negotiation thread.
type Negotiation struct {
	ID           string            `json:"id"`
	ListingID    string            `json:"listing_id"`
	ListingTitle string            `json:"listing_title,omitempty"`
	BuyerID      string            `json:"buyer_id"`
	SellerID     string            `json:"seller_id"`
	Status       NegotiationStatus `json:"status"`

	// AskingPrice is snapshotted from the listing at creation; offers are
	// always evaluated against it.
	AskingPrice     decimal.Decimal `json:"asking_price"`
	LastOfferAmount decimal.Decimal `json:"last_offer_amount"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Archived  bool      `json:"archived,omitempty"`

	MessageCount int       `json:"message_count,omitempty"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	Messages     []Message `json:"messages,omitempty"`
}

// StartNegotiationRequest is the request to open a negotiation with an
// initial buyer offer.
type StartNegotiationRequest struct {
	ListingID   string          `json:"listing_id"`
	OfferAmount decimal.Decimal `json:"offer_amount"`
	Message     string          `json:"message,omitempty"`
}

// ListNegotiationsResponse is the response for listing negotiations.
type ListNegotiationsResponse struct {
	Negotiations []Negotiation `json:"negotiations"`
	Total        int           `json:"total"`
	HasMore      bool          `json:"has_more"`
}

// SellerRespondRequest is a manual seller response to the current offer,
// used when the automated responder overrides the fixed counter policy.
type SellerRespondRequest struct {
	CounterAmount decimal.Decimal `json:"counter_amount"`
	Message       string          `json:"message,omitempty"`
}

// UnreadCountResponse reports unread messages for a party.
type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}
