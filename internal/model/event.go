package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType represents the type of negotiation event pushed to consumers.
type EventType string

const (
	EventTypeOfferReceived EventType = "offer_received"
	EventTypeCounterSent   EventType = "counter_sent"
	EventTypeAccepted      EventType = "accepted"
	EventTypeRejected      EventType = "rejected"
	EventTypeMessage       EventType = "message"
)

// NegotiationEvent is the payload dispatched to the automated seller
// responder and published on the change feed. Delivery is fire-and-forget:
// negotiation state never depends on it.
type NegotiationEvent struct {
	ID            string    `json:"id"`
	NegotiationID string    `json:"negotiation_id"`
	ListingID     string    `json:"listing_id"`
	SellerID      string    `json:"seller_id"`
	Type          EventType `json:"type"`

	AskingPrice   decimal.Decimal  `json:"asking_price"`
	OfferAmount   decimal.Decimal  `json:"offer_amount"`
	CounterAmount *decimal.Decimal `json:"counter_amount,omitempty"`

	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Sequence  uint64    `json:"sequence,omitempty"`
}
