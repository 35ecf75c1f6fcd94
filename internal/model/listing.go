// Package model defines data structures for the negotiation platform.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus represents the availability of a listing.
type ListingStatus string

const (
	ListingAvailable ListingStatus = "available"
	ListingReserved  ListingStatus = "reserved"
	ListingSold      ListingStatus = "sold"
)

// Listing represents a product listing open to negotiation.
type Listing struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	SellerID    string          `json:"seller_id"`
	ImageURL    string          `json:"image_url,omitempty"`
	Status      ListingStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreateListingRequest is the request to publish a new listing.
type CreateListingRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url,omitempty"`
}

// ListListingsResponse is the response for listing the catalog.
type ListListingsResponse struct {
	Listings []Listing `json:"listings"`
	Total    int       `json:"total"`
}
