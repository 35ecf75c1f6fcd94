package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsy-ai/negotiation-platform/internal/evaluator"
	"github.com/tetsy-ai/negotiation-platform/internal/ledger"
	"github.com/tetsy-ai/negotiation-platform/internal/listing"
	"github.com/tetsy-ai/negotiation-platform/internal/middleware"
	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/internal/service"
	"github.com/tetsy-ai/negotiation-platform/pkg/logger"
)

const testSecret = "test-secret"

type env struct {
	router    chi.Router
	directory *listing.Directory
	sessions  *service.SessionService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	dir := listing.NewDirectory()
	led := ledger.New()
	log := logger.NewNop()

	sessions := service.NewSessionService(led, dir, evaluator.DefaultPolicy(), nil, service.Options{}, log)

	negotiationHandler := NewNegotiationHandler(sessions, log)
	messageHandler := NewMessageHandler(sessions, log)
	listingHandler := NewListingHandler(dir, sessions, log)
	sellerHandler := NewSellerHandler(sessions, log)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(testSecret))

		r.Route("/negotiations", func(r chi.Router) {
			r.Post("/", negotiationHandler.Create)
			r.Get("/", negotiationHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", negotiationHandler.Get)
				r.Post("/accept", negotiationHandler.Accept)
				r.Post("/reject", negotiationHandler.Reject)
				r.Post("/archive", negotiationHandler.Archive)
				r.Post("/read", messageHandler.MarkRead)
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
			})
		})

		r.Route("/seller", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleSeller))
			r.Get("/negotiations", sellerHandler.ListNegotiations)
			r.Get("/unread-count", sellerHandler.UnreadCount)
			r.Post("/negotiations/{id}/respond", sellerHandler.Respond)
		})

		r.Route("/listings", func(r chi.Router) {
			r.Post("/", listingHandler.Create)
			r.Get("/", listingHandler.List)
			r.Get("/{id}", listingHandler.Get)
			r.Post("/{id}/relist", listingHandler.Relist)
		})
	})

	return &env{router: r, directory: dir, sessions: sessions}
}

func token(t *testing.T, subject string, role model.Role) string {
	t.Helper()
	tk := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: string(role),
	})
	signed, err := tk.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (e *env) do(t *testing.T, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) createListing(t *testing.T, sellerTok, title, price string) model.Listing {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/listings", sellerTok, map[string]string{
		"title": title,
		"price": price,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var l model.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &l))
	return l
}

func TestNegotiationRound(t *testing.T) {
	e := newEnv(t)
	buyer := token(t, "buyer-1", model.RoleBuyer)
	seller := token(t, "seller-1", model.RoleSeller)

	l := e.createListing(t, seller, "Vintage Lamp", "50.00")

	rec := e.do(t, http.MethodPost, "/api/v1/negotiations", buyer, map[string]string{
		"listing_id":   l.ID,
		"offer_amount": "40.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var neg model.Negotiation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &neg))
	assert.Equal(t, model.NegotiationCountered, neg.Status)
	assert.True(t, decimal.RequireFromString("45.00").Equal(neg.LastOfferAmount))
	require.Len(t, neg.Messages, 2)

	// Both parties can read it; a stranger cannot.
	rec = e.do(t, http.MethodGet, "/api/v1/negotiations/"+neg.ID, seller, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	stranger := token(t, "buyer-2", model.RoleBuyer)
	rec = e.do(t, http.MethodGet, "/api/v1/negotiations/"+neg.ID, stranger, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Buyer meets the counter.
	rec = e.do(t, http.MethodPost, "/api/v1/negotiations/"+neg.ID+"/messages", buyer, map[string]string{
		"type":         "offer",
		"offer_amount": "45.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/v1/negotiations/"+neg.ID, buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &neg))
	assert.Equal(t, model.NegotiationAccepted, neg.Status)

	// The seller's confirmation lands in the thread with the accept.
	require.NotEmpty(t, neg.Messages)
	confirmation := neg.Messages[len(neg.Messages)-1]
	assert.Equal(t, model.RoleSeller, confirmation.SenderRole)
	assert.Equal(t, model.MessageTypeText, confirmation.Type)
	assert.Equal(t, "Deal! $45.00 works for me.", confirmation.Content)

	// Further offers conflict and return the authoritative state.
	rec = e.do(t, http.MethodPost, "/api/v1/negotiations/"+neg.ID+"/messages", buyer, map[string]string{
		"type":         "offer",
		"offer_amount": "48.00",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var conflict struct {
		Code  string          `json:"code"`
		State json.RawMessage `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, "NEGOTIATION_TERMINAL", conflict.Code)
	assert.NotEmpty(t, conflict.State)
}

func TestCreateNegotiationValidation(t *testing.T) {
	e := newEnv(t)
	buyer := token(t, "buyer-1", model.RoleBuyer)
	seller := token(t, "seller-1", model.RoleSeller)

	rec := e.do(t, http.MethodPost, "/api/v1/negotiations", seller, map[string]string{
		"listing_id":   "0190a8c2-3c1e-7b4a-9f52-6f1c9d2e3a4b",
		"offer_amount": "40.00",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/negotiations", buyer, map[string]string{
		"listing_id":   "not-a-uuid",
		"offer_amount": "40.00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/negotiations", buyer, map[string]string{
		"listing_id":   "0190a8c2-3c1e-7b4a-9f52-6f1c9d2e3a4b",
		"offer_amount": "40.00",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAcceptRejectEndpoints(t *testing.T) {
	e := newEnv(t)
	buyer := token(t, "buyer-1", model.RoleBuyer)
	seller := token(t, "seller-1", model.RoleSeller)

	l := e.createListing(t, seller, "Vintage Lamp", "50.00")

	rec := e.do(t, http.MethodPost, "/api/v1/negotiations", buyer, map[string]string{
		"listing_id":   l.ID,
		"offer_amount": "40.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var neg model.Negotiation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &neg))

	rec = e.do(t, http.MethodPost, "/api/v1/negotiations/"+neg.ID+"/accept", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &neg))
	assert.Equal(t, model.NegotiationAccepted, neg.Status)

	// Reject after accept conflicts.
	rec = e.do(t, http.MethodPost, "/api/v1/negotiations/"+neg.ID+"/reject", buyer, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSellerSurface(t *testing.T) {
	e := newEnv(t)
	buyer := token(t, "buyer-1", model.RoleBuyer)
	seller := token(t, "seller-1", model.RoleSeller)

	l := e.createListing(t, seller, "Vintage Lamp", "50.00")

	rec := e.do(t, http.MethodPost, "/api/v1/negotiations", buyer, map[string]string{
		"listing_id":   l.ID,
		"offer_amount": "40.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var neg model.Negotiation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &neg))

	// Buyers are shut out of the seller surface.
	rec = e.do(t, http.MethodGet, "/api/v1/seller/negotiations", buyer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/seller/negotiations?status=countered", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page model.ListNegotiationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Negotiations, 1)
	assert.Equal(t, neg.ID, page.Negotiations[0].ID)

	rec = e.do(t, http.MethodGet, "/api/v1/seller/negotiations?status=bogus", seller, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unread count covers the buyer's opening offer.
	rec = e.do(t, http.MethodGet, "/api/v1/seller/unread-count", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var unread model.UnreadCountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unread))
	assert.Equal(t, 1, unread.UnreadCount)

	rec = e.do(t, http.MethodPost, "/api/v1/negotiations/"+neg.ID+"/read", seller, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/seller/unread-count", seller, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unread))
	assert.Equal(t, 0, unread.UnreadCount)

	// Manual counter at the seller's own amount.
	rec = e.do(t, http.MethodPost, "/api/v1/seller/negotiations/"+neg.ID+"/respond", seller, map[string]string{
		"counter_amount": "43.00",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &neg))
	assert.Equal(t, model.NegotiationCountered, neg.Status)
	assert.True(t, decimal.RequireFromString("43.00").Equal(neg.LastOfferAmount))
}

func TestListingEndpoints(t *testing.T) {
	e := newEnv(t)
	buyer := token(t, "buyer-1", model.RoleBuyer)
	seller := token(t, "seller-1", model.RoleSeller)

	rec := e.do(t, http.MethodPost, "/api/v1/listings", buyer, map[string]string{
		"title": "Vintage Lamp",
		"price": "50.00",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	l := e.createListing(t, seller, "Vintage Lamp", "50.00")

	rec = e.do(t, http.MethodGet, "/api/v1/listings", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listings model.ListListingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listings))
	assert.Equal(t, 1, listings.Total)

	rec = e.do(t, http.MethodGet, "/api/v1/listings/"+l.ID, buyer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Accept a strong offer, then relist at a new price.
	rec = e.do(t, http.MethodPost, "/api/v1/negotiations", buyer, map[string]string{
		"listing_id":   l.ID,
		"offer_amount": "48.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/relist", seller, map[string]string{
		"price": "60.00",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var relisted model.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &relisted))
	assert.Equal(t, model.ListingAvailable, relisted.Status)
	assert.True(t, decimal.RequireFromString("60.00").Equal(relisted.Price))
}

func TestArchiveEndpoint(t *testing.T) {
	e := newEnv(t)
	buyer := token(t, "buyer-1", model.RoleBuyer)
	seller := token(t, "seller-1", model.RoleSeller)

	l := e.createListing(t, seller, "Vintage Lamp", "50.00")

	rec := e.do(t, http.MethodPost, "/api/v1/negotiations", buyer, map[string]string{
		"listing_id":   l.ID,
		"offer_amount": "40.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var neg model.Negotiation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &neg))

	rec = e.do(t, http.MethodPost, "/api/v1/negotiations/"+neg.ID+"/archive", buyer, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/negotiations/", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page model.ListNegotiationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Empty(t, page.Negotiations)
}
