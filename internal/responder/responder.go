// Package responder phrases the seller-side message content that accompanies
// automated negotiation decisions. The decision itself always comes from the
// evaluator; the responder only produces the human-readable text.
package responder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tetsy-ai/negotiation-platform/internal/llm"
	"github.com/tetsy-ai/negotiation-platform/pkg/logger"
	"github.com/tetsy-ai/negotiation-platform/pkg/metrics"
)

const systemPrompt = `You are a friendly seller on an online marketplace replying to a buyer's price offer.
Write exactly one short, polite sentence delivering the decision you are given.
State the price from the instruction verbatim. Do not change any numbers, do not add conditions, do not mention being automated.`

// Phraser produces seller message content for a decision.
type Phraser interface {
	// AcceptMessage phrases an acceptance of the given offer.
	AcceptMessage(ctx context.Context, listingTitle string, offerAmount string) string
	// CounterMessage phrases a counter-offer at counterAmount.
	CounterMessage(ctx context.Context, listingTitle string, offerAmount, counterAmount string) string
}

// Templates is the deterministic fallback phraser, and the default when no
// LLM provider is configured.
type Templates struct{}

// AcceptMessage implements Phraser.
func (Templates) AcceptMessage(ctx context.Context, listingTitle string, offerAmount string) string {
	return fmt.Sprintf("Deal! $%s works for me.", offerAmount)
}

// CounterMessage implements Phraser.
func (Templates) CounterMessage(ctx context.Context, listingTitle string, offerAmount, counterAmount string) string {
	return fmt.Sprintf("I can do $%s", counterAmount)
}

// LLMPhraser phrases responses with an LLM provider and falls back to
// templates on any failure.
type LLMPhraser struct {
	client   llm.Client
	model    string
	timeout  time.Duration
	fallback Templates
	logger   *logger.Logger
}

// NewLLMPhraser creates a phraser backed by the given provider.
func NewLLMPhraser(client llm.Client, model string, timeout time.Duration, log *logger.Logger) *LLMPhraser {
	return &LLMPhraser{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  log,
	}
}

// AcceptMessage implements Phraser.
func (p *LLMPhraser) AcceptMessage(ctx context.Context, listingTitle string, offerAmount string) string {
	prompt := fmt.Sprintf("Accept the buyer's offer of $%s for %q.", offerAmount, listingTitle)
	if out := p.phrase(ctx, prompt, offerAmount); out != "" {
		return out
	}
	return p.fallback.AcceptMessage(ctx, listingTitle, offerAmount)
}

// CounterMessage implements Phraser.
func (p *LLMPhraser) CounterMessage(ctx context.Context, listingTitle string, offerAmount, counterAmount string) string {
	prompt := fmt.Sprintf("Decline the buyer's offer of $%s for %q and counter at exactly $%s.",
		offerAmount, listingTitle, counterAmount)
	if out := p.phrase(ctx, prompt, counterAmount); out != "" {
		return out
	}
	return p.fallback.CounterMessage(ctx, listingTitle, offerAmount, counterAmount)
}

// phrase runs one completion. The reply must quote the required amount
// verbatim; anything else is discarded so the policy amount can never be
// misstated to the buyer.
func (p *LLMPhraser) phrase(ctx context.Context, prompt, requiredAmount string) string {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.Complete(ctx, &llm.CompletionRequest{
		Model:  p.model,
		System: systemPrompt,
		Messages: []llm.ChatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: 128,
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ResponderDuration.WithLabelValues(p.client.Name(), status).Observe(time.Since(start).Seconds())

	if err != nil {
		p.logger.Warn("responder phrasing failed, using template", zap.Error(err))
		return ""
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" || !strings.Contains(content, requiredAmount) {
		p.logger.Warn("responder reply did not quote the required amount, using template",
			zap.String("required_amount", requiredAmount))
		return ""
	}
	return content
}
