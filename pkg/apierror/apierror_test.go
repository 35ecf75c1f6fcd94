package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		err    *Error
		code   string
		status int
	}{
		{InvalidInput("title", "title cannot be empty"), CodeInvalidInput, http.StatusBadRequest},
		{NotFound(""), CodeNotFound, http.StatusNotFound},
		{ListingUnavailable(""), CodeListingUnavailable, http.StatusConflict},
		{NegotiationTerminal(""), CodeNegotiationTerminal, http.StatusConflict},
		{InvalidTransition("invalid transition pending -> pending"), CodeInvalidTransition, http.StatusConflict},
		{DispatchFailure("retries exhausted"), CodeDispatchFailure, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestInvalidInputCarriesField(t *testing.T) {
	err := InvalidInput("offer_amount", "offer amount must be positive")
	require.Len(t, err.Details, 1)
	assert.Equal(t, "offer_amount", err.Details[0].Field)
}

func TestAsUnwrapsThroughWrapping(t *testing.T) {
	inner := NotFound("negotiation not found")
	wrapped := fmt.Errorf("loading thread: %w", inner)

	apiErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, apiErr.Code)

	assert.True(t, Is(wrapped, CodeNotFound))
	assert.False(t, Is(wrapped, CodeInvalidInput))
	assert.False(t, Is(errors.New("plain"), CodeNotFound))
	assert.False(t, Is(nil, CodeNotFound))
}

func TestWithState(t *testing.T) {
	state := map[string]string{"status": "accepted"}
	err := NegotiationTerminal("").WithState(state)
	assert.Equal(t, state, err.State)
}
