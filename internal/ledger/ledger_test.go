package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/pkg/apierror"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func newNegotiation(t *testing.T, l *Ledger) *model.Negotiation {
	t.Helper()
	neg, err := l.Create(context.Background(), CreateParams{
		ListingID:    "listing-1",
		ListingTitle: "Vintage Lamp",
		BuyerID:      "buyer-1",
		SellerID:     "seller-1",
		AskingPrice:  dec("50.00"),
		OfferAmount:  dec("40.00"),
	})
	require.NoError(t, err)
	return neg
}

func TestCreateOpensPendingWithFirstOffer(t *testing.T) {
	l := New()
	neg := newNegotiation(t, l)

	assert.Equal(t, model.NegotiationPending, neg.Status)
	assert.True(t, dec("40.00").Equal(neg.LastOfferAmount))
	assert.Equal(t, 1, neg.MessageCount)

	full, err := l.Get(context.Background(), neg.ID)
	require.NoError(t, err)
	require.Len(t, full.Messages, 1)

	first := full.Messages[0]
	assert.Equal(t, model.RoleBuyer, first.SenderRole)
	assert.Equal(t, model.MessageTypeOffer, first.Type)
	assert.Equal(t, "I'd like to offer $40.00 for this item.", first.Content)
	assert.True(t, first.ReadByBuyer)
	assert.False(t, first.ReadBySeller)
}

func TestCreateValidation(t *testing.T) {
	l := New()
	ctx := context.Background()

	_, err := l.Create(ctx, CreateParams{
		ListingID: "listing-1", BuyerID: "b", SellerID: "s",
		AskingPrice: dec("50.00"), OfferAmount: dec("0"),
	})
	assert.True(t, apierror.Is(err, apierror.CodeInvalidInput))

	_, err = l.Create(ctx, CreateParams{
		ListingID: "listing-1", SellerID: "s",
		AskingPrice: dec("50.00"), OfferAmount: dec("10.00"),
	})
	assert.True(t, apierror.Is(err, apierror.CodeInvalidInput))
}

func TestAppendUpdatesLastOfferAmount(t *testing.T) {
	l := New()
	ctx := context.Background()
	neg := newNegotiation(t, l)

	_, err := l.Append(ctx, neg.ID, AppendParams{
		SenderID:   "seller-1",
		SenderRole: model.RoleSeller,
		Type:       model.MessageTypeCounterOffer,
		Amount:     decPtr("45.00"),
		Content:    "I can do $45.00",
	})
	require.NoError(t, err)

	got, err := l.Get(ctx, neg.ID)
	require.NoError(t, err)
	assert.True(t, dec("45.00").Equal(got.LastOfferAmount))

	// Plain messages never move the offer amount.
	_, err = l.Append(ctx, neg.ID, AppendParams{
		SenderID:   "buyer-1",
		SenderRole: model.RoleBuyer,
		Type:       model.MessageTypeText,
		Content:    "Is shipping included?",
	})
	require.NoError(t, err)

	got, err = l.Get(ctx, neg.ID)
	require.NoError(t, err)
	assert.True(t, dec("45.00").Equal(got.LastOfferAmount))
	assert.Equal(t, 3, got.MessageCount)
}

func TestAppendValidation(t *testing.T) {
	l := New()
	ctx := context.Background()
	neg := newNegotiation(t, l)

	tests := []struct {
		name   string
		params AppendParams
	}{
		{"bad role", AppendParams{SenderRole: "admin", Type: model.MessageTypeText}},
		{"bad type", AppendParams{SenderRole: model.RoleBuyer, Type: "poke"}},
		{"offer without amount", AppendParams{SenderRole: model.RoleBuyer, Type: model.MessageTypeOffer}},
		{"offer with zero amount", AppendParams{SenderRole: model.RoleBuyer, Type: model.MessageTypeOffer, Amount: decPtr("0")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Append(ctx, neg.ID, tt.params)
			assert.True(t, apierror.Is(err, apierror.CodeInvalidInput))
		})
	}

	_, err := l.Append(ctx, "no-such-id", AppendParams{
		SenderRole: model.RoleBuyer, Type: model.MessageTypeText,
	})
	assert.True(t, apierror.Is(err, apierror.CodeNotFound))
}

func TestAppendToTerminalNegotiationFails(t *testing.T) {
	l := New()
	ctx := context.Background()
	neg := newNegotiation(t, l)

	_, err := l.Transition(ctx, neg.ID, model.NegotiationAccepted, nil)
	require.NoError(t, err)

	before, err := l.Get(ctx, neg.ID)
	require.NoError(t, err)

	_, err = l.Append(ctx, neg.ID, AppendParams{
		SenderID:   "buyer-1",
		SenderRole: model.RoleBuyer,
		Type:       model.MessageTypeOffer,
		Amount:     decPtr("48.00"),
	})
	require.Error(t, err)

	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.CodeNegotiationTerminal, apiErr.Code)
	assert.NotNil(t, apiErr.State)

	// History unchanged.
	after, err := l.Get(ctx, neg.ID)
	require.NoError(t, err)
	assert.Equal(t, before.MessageCount, after.MessageCount)
	assert.True(t, before.LastOfferAmount.Equal(after.LastOfferAmount))
	assert.Equal(t, model.NegotiationAccepted, after.Status)
}

func TestTransitionGraph(t *testing.T) {
	ctx := context.Background()

	t.Run("pending to countered to accepted", func(t *testing.T) {
		l := New()
		neg := newNegotiation(t, l)

		got, err := l.Transition(ctx, neg.ID, model.NegotiationCountered, decPtr("45.00"))
		require.NoError(t, err)
		assert.Equal(t, model.NegotiationCountered, got.Status)
		assert.True(t, dec("45.00").Equal(got.LastOfferAmount))

		got, err = l.Transition(ctx, neg.ID, model.NegotiationAccepted, nil)
		require.NoError(t, err)
		assert.Equal(t, model.NegotiationAccepted, got.Status)
		assert.True(t, dec("45.00").Equal(got.LastOfferAmount))
	})

	t.Run("countered to countered is allowed", func(t *testing.T) {
		l := New()
		neg := newNegotiation(t, l)

		_, err := l.Transition(ctx, neg.ID, model.NegotiationCountered, decPtr("45.00"))
		require.NoError(t, err)
		_, err = l.Transition(ctx, neg.ID, model.NegotiationCountered, decPtr("44.00"))
		require.NoError(t, err)
	})

	t.Run("pending to pending is rejected", func(t *testing.T) {
		l := New()
		neg := newNegotiation(t, l)

		_, err := l.Transition(ctx, neg.ID, model.NegotiationPending, nil)
		assert.True(t, apierror.Is(err, apierror.CodeInvalidTransition))
	})

	t.Run("terminal states admit no transitions", func(t *testing.T) {
		for _, terminal := range []model.NegotiationStatus{model.NegotiationAccepted, model.NegotiationRejected} {
			l := New()
			neg := newNegotiation(t, l)

			_, err := l.Transition(ctx, neg.ID, terminal, nil)
			require.NoError(t, err)

			for _, next := range []model.NegotiationStatus{
				model.NegotiationPending,
				model.NegotiationCountered,
				model.NegotiationAccepted,
				model.NegotiationRejected,
			} {
				_, err := l.Transition(ctx, neg.ID, next, nil)
				assert.True(t, apierror.Is(err, apierror.CodeNegotiationTerminal),
					"%s -> %s should fail terminal", terminal, next)
			}
		}
	})
}

func TestResolveCommitsTransitionWithMessage(t *testing.T) {
	l := New()
	ctx := context.Background()
	neg := newNegotiation(t, l)

	got, msg, err := l.Resolve(ctx, neg.ID, model.NegotiationAccepted, decPtr("45.00"), AppendParams{
		SenderID:   "seller-1",
		SenderRole: model.RoleSeller,
		Type:       model.MessageTypeText,
		Content:    "Deal! $45.00 works for me.",
	})
	require.NoError(t, err)

	assert.Equal(t, model.NegotiationAccepted, got.Status)
	assert.True(t, dec("45.00").Equal(got.LastOfferAmount))
	assert.Equal(t, 2, got.MessageCount)

	require.NotNil(t, msg)
	assert.Equal(t, model.RoleSeller, msg.SenderRole)
	assert.Equal(t, model.MessageTypeText, msg.Type)
	assert.Equal(t, "Deal! $45.00 works for me.", msg.Content)

	// The thread is terminal with its closing message already in place.
	_, _, err = l.Resolve(ctx, neg.ID, model.NegotiationRejected, nil, AppendParams{
		SenderID:   "seller-1",
		SenderRole: model.RoleSeller,
		Type:       model.MessageTypeText,
		Content:    "changed my mind",
	})
	assert.True(t, apierror.Is(err, apierror.CodeNegotiationTerminal))

	after, err := l.Get(ctx, neg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.MessageCount)
}

func TestResolveRefusedTransitionAppendsNothing(t *testing.T) {
	l := New()
	ctx := context.Background()
	neg := newNegotiation(t, l)

	_, _, err := l.Resolve(ctx, neg.ID, model.NegotiationPending, nil, AppendParams{
		SenderID:   "seller-1",
		SenderRole: model.RoleSeller,
		Type:       model.MessageTypeText,
		Content:    "still thinking",
	})
	assert.True(t, apierror.Is(err, apierror.CodeInvalidTransition))

	after, err := l.Get(ctx, neg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NegotiationPending, after.Status)
	assert.Equal(t, 1, after.MessageCount)
	assert.True(t, dec("40.00").Equal(after.LastOfferAmount))
}

func TestConcurrentTransitionsSingleWinner(t *testing.T) {
	l := New()
	ctx := context.Background()
	neg := newNegotiation(t, l)

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Transition(ctx, neg.ID, model.NegotiationAccepted, nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
		} else {
			assert.True(t, apierror.Is(err, apierror.CodeNegotiationTerminal))
		}
	}
	assert.Equal(t, 1, ok)
}

func TestMessagesStayOrdered(t *testing.T) {
	l := New()
	ctx := context.Background()
	neg := newNegotiation(t, l)

	contents := []string{"first", "second", "third", "fourth"}
	for _, c := range contents {
		_, err := l.Append(ctx, neg.ID, AppendParams{
			SenderID:   "buyer-1",
			SenderRole: model.RoleBuyer,
			Type:       model.MessageTypeText,
			Content:    c,
		})
		require.NoError(t, err)
	}

	got, err := l.Get(ctx, neg.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, len(contents)+1)
	for i, c := range contents {
		assert.Equal(t, c, got.Messages[i+1].Content)
	}
}

func TestListForParty(t *testing.T) {
	l := New()
	ctx := context.Background()

	negA, err := l.Create(ctx, CreateParams{
		ListingID: "listing-1", ListingTitle: "Lamp",
		BuyerID: "buyer-1", SellerID: "seller-1",
		AskingPrice: dec("50.00"), OfferAmount: dec("40.00"),
	})
	require.NoError(t, err)

	negB, err := l.Create(ctx, CreateParams{
		ListingID: "listing-2", ListingTitle: "Rug",
		BuyerID: "buyer-2", SellerID: "seller-1",
		AskingPrice: dec("80.00"), OfferAmount: dec("70.00"),
	})
	require.NoError(t, err)

	// Touch negA so it sorts first.
	_, err = l.Append(ctx, negA.ID, AppendParams{
		SenderID: "buyer-1", SenderRole: model.RoleBuyer,
		Type: model.MessageTypeText, Content: "still interested",
	})
	require.NoError(t, err)

	seller := l.ListForParty(ctx, "seller-1", ListFilter{Role: model.RoleSeller})
	require.Len(t, seller, 2)
	assert.Equal(t, negA.ID, seller[0].ID)
	assert.Equal(t, negB.ID, seller[1].ID)

	buyer := l.ListForParty(ctx, "buyer-2", ListFilter{Role: model.RoleBuyer})
	require.Len(t, buyer, 1)
	assert.Equal(t, negB.ID, buyer[0].ID)

	// Status filter.
	_, err = l.Transition(ctx, negB.ID, model.NegotiationAccepted, nil)
	require.NoError(t, err)

	accepted := l.ListForParty(ctx, "seller-1", ListFilter{
		Role: model.RoleSeller, Status: model.NegotiationAccepted,
	})
	require.Len(t, accepted, 1)
	assert.Equal(t, negB.ID, accepted[0].ID)

	// Archived negotiations drop out unless asked for.
	require.NoError(t, l.Archive(ctx, negA.ID))

	visible := l.ListForParty(ctx, "seller-1", ListFilter{Role: model.RoleSeller})
	require.Len(t, visible, 1)
	assert.Equal(t, negB.ID, visible[0].ID)

	all := l.ListForParty(ctx, "seller-1", ListFilter{Role: model.RoleSeller, IncludeArchived: true})
	assert.Len(t, all, 2)
}

func TestHasActive(t *testing.T) {
	l := New()
	ctx := context.Background()
	neg := newNegotiation(t, l)

	assert.True(t, l.HasActive(ctx, "listing-1"))
	assert.False(t, l.HasActive(ctx, "listing-2"))

	_, err := l.Transition(ctx, neg.ID, model.NegotiationRejected, nil)
	require.NoError(t, err)
	assert.False(t, l.HasActive(ctx, "listing-1"))
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	l := New()
	ctx := context.Background()
	neg := newNegotiation(t, l)

	// The opening offer is unread by the seller.
	assert.Equal(t, 1, l.UnreadCount(ctx, "seller-1", model.RoleSeller))
	assert.Equal(t, 0, l.UnreadCount(ctx, "buyer-1", model.RoleBuyer))

	_, err := l.Append(ctx, neg.ID, AppendParams{
		SenderID: "seller-1", SenderRole: model.RoleSeller,
		Type: model.MessageTypeCounterOffer, Amount: decPtr("45.00"),
		Content: "I can do $45.00",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, l.UnreadCount(ctx, "seller-1", model.RoleSeller))
	assert.Equal(t, 1, l.UnreadCount(ctx, "buyer-1", model.RoleBuyer))

	require.NoError(t, l.MarkRead(ctx, neg.ID, model.RoleSeller))
	assert.Equal(t, 0, l.UnreadCount(ctx, "seller-1", model.RoleSeller))
	assert.Equal(t, 1, l.UnreadCount(ctx, "buyer-1", model.RoleBuyer))
}
