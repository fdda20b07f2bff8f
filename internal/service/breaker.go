package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig configures the per-provider circuit breaker.
type BreakerConfig struct {
	Enabled             bool
	ConsecutiveFailures uint32        // Trip after this many failures in a row
	MaxRequests         uint32        // Requests allowed through while half-open
	Interval            time.Duration // Closed-state counter reset period; 0 never resets
	Timeout             time.Duration // Open-state duration before probing again
}

// errOutcomeError marks an ERROR outcome as a breaker failure without losing the result.
var errOutcomeError = errors.New("provider reported error outcome")

// breakerGateway trips when a provider keeps failing so reservations fail fast
// instead of waiting out the provider timeout. Declines are not failures.
type breakerGateway struct {
	providerID string
	next       ProviderGateway
	cb         *gobreaker.CircuitBreaker
}

func newBreakerGateway(providerID string, next ProviderGateway, cfg BreakerConfig, logger *zap.Logger) *breakerGateway {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	settings := gobreaker.Settings{
		Name:        "provider-" + providerID,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("provider circuit breaker state changed",
				zap.String("provider", providerID),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &breakerGateway{
		providerID: providerID,
		next:       next,
		cb:         gobreaker.NewCircuitBreaker(settings),
	}
}

func (g *breakerGateway) Reserve(ctx context.Context, req ProviderRequest) (ProviderResult, error) {
	return g.execute(func() (ProviderResult, error) { return g.next.Reserve(ctx, req) })
}

// Void bypasses the breaker: compensation must always be attempted.
func (g *breakerGateway) Void(ctx context.Context, req ProviderRequest) (ProviderResult, error) {
	return g.next.Void(ctx, req)
}

func (g *breakerGateway) Charge(ctx context.Context, req ProviderRequest) (ProviderResult, error) {
	return g.execute(func() (ProviderResult, error) { return g.next.Charge(ctx, req) })
}

func (g *breakerGateway) Credit(ctx context.Context, req ProviderRequest) (ProviderResult, error) {
	return g.execute(func() (ProviderResult, error) { return g.next.Credit(ctx, req) })
}

func (g *breakerGateway) execute(call func() (ProviderResult, error)) (ProviderResult, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		res, err := call()
		if err == nil && res.Outcome == OutcomeError {
			return res, errOutcomeError
		}
		return res, err
	})

	switch {
	case err == nil, errors.Is(err, errOutcomeError):
		return out.(ProviderResult), nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ProviderResult{}, fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, g.providerID, err)
	default:
		return ProviderResult{}, err
	}
}
