// Package orchestrator wraps outbound AI provider calls with a minimum call
// interval and bounded retry, and reports every outcome as a domain.Result.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/medilens/internal/domain"
	"github.com/medilens/internal/metrics"
	"go.uber.org/zap"
)

// Failure messages surfaced to callers.
const (
	MsgEmptyResponse = "Empty response from AI provider. Please try again."
	MsgMaxRetries    = "Maximum retry attempts reached. AI provider request failed."
	MsgRejected      = "AI provider rejected the request. Please try again later."
	MsgCancelled     = "The request was cancelled before the AI provider answered."
)

// Generator produces text for a prompt. ai.Client implementations satisfy it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// CallFunc is one outbound provider call returning its primary text.
type CallFunc func(ctx context.Context) (string, error)

// Options configures the retry policy.
type Options struct {
	// Provider labels logs and metrics.
	Provider string

	// MaxAttempts is the total number of attempts per logical call (minimum 1).
	MaxAttempts int

	// RetryBaseDelay is multiplied by the attempt number to get the wait
	// before the next attempt.
	RetryBaseDelay time.Duration

	// Clock drives backoff waits. Defaults to SystemClock.
	Clock Clock
}

// Orchestrator runs provider calls through a Gate with linear-backoff retry.
type Orchestrator struct {
	gen         Generator
	gate        Gate
	provider    string
	maxAttempts int
	baseDelay   time.Duration
	clock       Clock
	logger      *zap.Logger
}

// New creates an Orchestrator. The gate owns the shared last-call time, so
// orchestrators that must share a quota window must share a gate.
func New(gen Generator, gate Gate, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Provider == "" {
		opts.Provider = "unknown"
	}
	return &Orchestrator{
		gen:         gen,
		gate:        gate,
		provider:    opts.Provider,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.RetryBaseDelay,
		clock:       opts.Clock,
		logger:      logger.Named("orchestrator"),
	}
}

// Invoke sends prompt to the generator under the throttle and retry policy.
func (o *Orchestrator) Invoke(ctx context.Context, prompt string) domain.Result[string] {
	return o.Do(ctx, "generate", func(ctx context.Context) (string, error) {
		return o.gen.Generate(ctx, prompt)
	})
}

// Do runs call under the throttle and retry policy. Transport errors are
// retried until MaxAttempts; empty answers and errors the provider client
// marked permanent end the call on first occurrence.
func (o *Orchestrator) Do(ctx context.Context, op string, call CallFunc) domain.Result[string] {
	log := o.logger.With(zap.String("op", op))

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		slot, err := o.gate.Acquire(ctx)
		if err != nil {
			log.Warn("throttle gate failed", zap.Int("attempt", attempt), zap.Error(err))
			if ctx.Err() != nil {
				return domain.Fail[string](domain.FailureUnexpected, MsgCancelled)
			}
			return domain.Fail[string](domain.FailureUnexpected, MsgRejected)
		}
		if slot.Waited > 0 {
			metrics.ObserveThrottleWait(slot.Waited)
			log.Debug("throttled provider call", zap.Duration("waited", slot.Waited))
		}

		started := time.Now()
		text, err := call(ctx)
		elapsed := time.Since(started)

		if err == nil {
			text = strings.TrimSpace(text)
			if text == "" {
				metrics.ObserveCall(o.provider, op, "empty", elapsed)
				log.Warn("provider returned empty text", zap.Int("attempt", attempt))
				return domain.Fail[string](domain.FailureEmptyResponse, MsgEmptyResponse)
			}
			metrics.ObserveCall(o.provider, op, "ok", elapsed)
			log.Debug("provider call succeeded",
				zap.Int("attempt", attempt),
				zap.Duration("duration", elapsed),
				zap.Int("response_length", len(text)),
			)
			return domain.Succeed(text)
		}

		if errors.Is(err, domain.ErrEmptyResponse) {
			metrics.ObserveCall(o.provider, op, "empty", elapsed)
			log.Warn("provider returned no candidates", zap.Int("attempt", attempt), zap.Error(err))
			return domain.Fail[string](domain.FailureEmptyResponse, MsgEmptyResponse)
		}

		metrics.ObserveCall(o.provider, op, "error", elapsed)

		if ctx.Err() != nil {
			log.Warn("provider call cancelled", zap.Int("attempt", attempt), zap.Error(err))
			return domain.Fail[string](domain.FailureUnexpected, MsgCancelled)
		}

		if domain.IsPermanent(err) {
			log.Error("provider rejected call", zap.Int("attempt", attempt), zap.Error(err))
			return domain.Fail[string](domain.FailureUnexpected, MsgRejected)
		}

		if attempt == o.maxAttempts {
			log.Error("provider call failed, giving up",
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			break
		}

		backoff := time.Duration(attempt) * o.baseDelay
		metrics.IncRetry(o.provider, op)
		log.Warn("provider call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-o.clock.After(backoff):
		case <-ctx.Done():
			return domain.Fail[string](domain.FailureUnexpected, MsgCancelled)
		}
	}

	return domain.Fail[string](domain.FailureMaxRetries, MsgMaxRetries)
}
