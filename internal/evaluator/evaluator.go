// Package evaluator implements the offer evaluation policy: accept offers at
// or above a fixed fraction of the asking price, counter everything below it
// at a fixed rate. Rejection is never issued automatically; it remains an
// explicit party action.
package evaluator

import (
	"github.com/shopspring/decimal"

	"github.com/tetsy-ai/negotiation-platform/pkg/apierror"
)

// Decision is an evaluator outcome.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionCounter Decision = "counter"
	DecisionReject  Decision = "reject"
)

// Policy holds the evaluation thresholds. The policy is a single fixed
// counter tier: repeated low offers yield the same counter amount each round.
type Policy struct {
	// AcceptRatio is the minimum offer/asking ratio that is accepted.
	AcceptRatio decimal.Decimal
	// CounterRate is the fraction of the asking price proposed when
	// countering.
	CounterRate decimal.Decimal
}

// DefaultPolicy returns the production policy: accept at >= 85% of asking,
// counter at 90% of asking.
func DefaultPolicy() Policy {
	return Policy{
		AcceptRatio: decimal.NewFromFloat(0.85),
		CounterRate: decimal.NewFromFloat(0.90),
	}
}

// Result is the outcome of evaluating one offer.
type Result struct {
	Decision Decision
	// CounterAmount is set when Decision is DecisionCounter, rounded to
	// two decimal places.
	CounterAmount decimal.Decimal
	// Ratio is offer/asking, for observability.
	Ratio decimal.Decimal
}

// Evaluate decides whether to accept or counter an offer against an asking
// price. It is pure and deterministic: the same inputs always produce the
// same result.
func (p Policy) Evaluate(askingPrice, offerAmount decimal.Decimal) (Result, error) {
	if askingPrice.LessThanOrEqual(decimal.Zero) {
		return Result{}, apierror.InvalidInput("asking_price", "asking price must be positive")
	}
	if offerAmount.LessThanOrEqual(decimal.Zero) {
		return Result{}, apierror.InvalidInput("offer_amount", "offer amount must be positive")
	}

	ratio := offerAmount.Div(askingPrice)

	if ratio.GreaterThanOrEqual(p.AcceptRatio) {
		return Result{Decision: DecisionAccept, Ratio: ratio}, nil
	}

	return Result{
		Decision:      DecisionCounter,
		CounterAmount: askingPrice.Mul(p.CounterRate).Round(2),
		Ratio:         ratio,
	}, nil
}
