package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/example/ewaste-exchange/internal/logger"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 15 * time.Second

// Provider sends a prompt to an AI model and returns its raw text.
type Provider interface {
	Suggest(ctx context.Context, prompt string) (string, error)
}

type Estimator struct {
	provider Provider
	timeout  time.Duration
	metrics  *Metrics
	log      *logger.Logger
}

type Option func(*Estimator)

func WithTimeout(d time.Duration) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Estimator) { e.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.log = l.Component("pricing")
		}
	}
}

// NewEstimator builds an estimator. A nil provider prices everything from the
// rule table.
func NewEstimator(provider Provider, opts ...Option) *Estimator {
	e := &Estimator{
		provider: provider,
		timeout:  DefaultTimeout,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate never fails: every error path returns the rule-table estimate.
func (e *Estimator) Estimate(ctx context.Context, in Input, locality string) Estimate {
	est := e.estimate(ctx, in, locality)
	e.metrics.observe(est)
	if est.IsFallback() {
		e.log.Warn(ctx, "pricing fell back to rate table", map[string]any{
			"reason":     string(est.FallbackReason),
			"waste_type": in.WasteType,
		})
	}
	return est
}

func (e *Estimator) estimate(ctx context.Context, in Input, locality string) Estimate {
	if e.provider == nil {
		return Fallback(in, ReasonUnconfigured)
	}

	start := time.Now()
	text, err := e.call(ctx, buildPrompt(in, locality))
	e.metrics.observeLatency(time.Since(start))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Fallback(in, ReasonTimeout)
		}
		e.log.Error(ctx, "pricing provider failed", err)
		return Fallback(in, ReasonProviderError)
	}

	resp, err := parseResponse(text)
	if err != nil {
		return Fallback(in, ReasonUnparsable)
	}
	if resp.Price == nil {
		return Fallback(in, ReasonMissingPrice)
	}

	est := Estimate{
		Price:          *resp.Price,
		ConditionScore: defaultConditionScore,
		Confidence:     defaultConditionScore,
		Explanation:    resp.Explanation,
		Source:         SourceAI,
	}
	if in.ConditionScore != nil {
		est.ConditionScore = *in.ConditionScore
	}
	if resp.ConditionScore != nil {
		est.ConditionScore = *resp.ConditionScore
	}
	if resp.Confidence != nil {
		est.Confidence = *resp.Confidence
	}
	return est.clamped()
}

// call waits for the provider at most e.timeout, even when the provider
// ignores context cancellation.
func (e *Estimator) call(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := e.provider.Suggest(ctx, prompt)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			return "", ctx.Err()
		}
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
