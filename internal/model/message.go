package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role represents which side of the negotiation sent a message.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// MessageType distinguishes free-text messages from offers.
type MessageType string

const (
	MessageTypeText         MessageType = "message"
	MessageTypeOffer        MessageType = "offer"
	MessageTypeCounterOffer MessageType = "counter_offer"
)

// RequiresAmount reports whether the type must carry an offer amount.
func (t MessageType) RequiresAmount() bool {
	return t == MessageTypeOffer || t == MessageTypeCounterOffer
}

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeOffer, MessageTypeCounterOffer:
		return true
	}
	return false
}

// Message represents one entry in a negotiation thread. Messages are
// append-only; they are never mutated or deleted once created.
type Message struct {
	ID            string `json:"id"`
	NegotiationID string `json:"negotiation_id"`

	SenderID   string      `json:"sender_id"`
	SenderRole Role        `json:"sender_role"`
	Type       MessageType `json:"type"`

	// OfferAmount is required when Type is offer or counter_offer.
	OfferAmount *decimal.Decimal `json:"offer_amount,omitempty"`
	Content     string           `json:"content"`

	ReadByBuyer  bool `json:"read_by_buyer"`
	ReadBySeller bool `json:"read_by_seller"`

	CreatedAt time.Time `json:"created_at"`

	// Sequence is the change-feed sequence, populated when the message has
	// been published to the stream.
	Sequence uint64 `json:"sequence,omitempty"`
}

// SendMessageRequest is the request to append a message or a new offer to a
// negotiation.
type SendMessageRequest struct {
	Type        MessageType      `json:"type"`
	Content     string           `json:"content"`
	OfferAmount *decimal.Decimal `json:"offer_amount,omitempty"`
}

// ListMessagesResponse is the response for listing a negotiation's messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
