// Package listing provides the listing directory: the set of listings
// available for negotiation.
package listing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/pkg/apierror"
)

// Directory owns listing records. All status changes go through
// check-and-set methods under the directory lock, so a listing can be
// reserved by at most one accepted negotiation.
type Directory struct {
	mu       sync.RWMutex
	listings map[string]*model.Listing
}

// NewDirectory creates an empty listing directory.
func NewDirectory() *Directory {
	return &Directory{
		listings: make(map[string]*model.Listing),
	}
}

// Create publishes a new listing in available status.
func (d *Directory) Create(ctx context.Context, sellerID string, req *model.CreateListingRequest) (*model.Listing, error) {
	if req.Title == "" {
		return nil, apierror.InvalidInput("title", "title cannot be empty")
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		return nil, apierror.InvalidInput("price", "price must be positive")
	}

	now := time.Now()
	l := &model.Listing{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		SellerID:    sellerID,
		ImageURL:    req.ImageURL,
		Status:      model.ListingAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	d.mu.Lock()
	d.listings[l.ID] = l
	d.mu.Unlock()

	copied := *l
	return &copied, nil
}

// Get retrieves a listing by ID.
func (d *Directory) Get(ctx context.Context, listingID string) (*model.Listing, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	l, exists := d.listings[listingID]
	if !exists {
		return nil, apierror.NotFound("listing not found")
	}

	copied := *l
	return &copied, nil
}

// AskingPrice returns the asking price of an available listing. It fails
// with ListingUnavailable when the listing is reserved or sold.
func (d *Directory) AskingPrice(ctx context.Context, listingID string) (decimal.Decimal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	l, exists := d.listings[listingID]
	if !exists {
		return decimal.Decimal{}, apierror.NotFound("listing not found")
	}
	if l.Status != model.ListingAvailable {
		return decimal.Decimal{}, apierror.ListingUnavailable("")
	}

	return l.Price, nil
}

// Reserve atomically moves a listing from available to reserved. The
// check-and-set under the lock is what guarantees at most one accepted
// negotiation per listing.
func (d *Directory) Reserve(ctx context.Context, listingID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, exists := d.listings[listingID]
	if !exists {
		return apierror.NotFound("listing not found")
	}
	if l.Status != model.ListingAvailable {
		return apierror.ListingUnavailable("listing has already been reserved or sold")
	}

	l.Status = model.ListingReserved
	l.UpdatedAt = time.Now()
	return nil
}

// Release returns a reserved listing to available. Used when an accept
// could not be completed after the reservation.
func (d *Directory) Release(ctx context.Context, listingID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, exists := d.listings[listingID]
	if !exists {
		return apierror.NotFound("listing not found")
	}
	if l.Status != model.ListingReserved {
		return apierror.InvalidTransition("only reserved listings can be released")
	}

	l.Status = model.ListingAvailable
	l.UpdatedAt = time.Now()
	return nil
}

// MarkSold moves a reserved listing to sold.
func (d *Directory) MarkSold(ctx context.Context, listingID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, exists := d.listings[listingID]
	if !exists {
		return apierror.NotFound("listing not found")
	}
	if l.Status != model.ListingReserved {
		return apierror.InvalidTransition("only reserved listings can be marked sold")
	}

	l.Status = model.ListingSold
	l.UpdatedAt = time.Now()
	return nil
}

// Relist resets a reserved or sold listing to available with a new price.
// Prices are otherwise immutable once published.
func (d *Directory) Relist(ctx context.Context, listingID string, price decimal.Decimal) (*model.Listing, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, apierror.InvalidInput("price", "price must be positive")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	l, exists := d.listings[listingID]
	if !exists {
		return nil, apierror.NotFound("listing not found")
	}

	l.Status = model.ListingAvailable
	l.Price = price
	l.UpdatedAt = time.Now()

	copied := *l
	return &copied, nil
}

// List returns all listings, newest first.
func (d *Directory) List(ctx context.Context) []model.Listing {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]model.Listing, 0, len(d.listings))
	for _, l := range d.listings {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
