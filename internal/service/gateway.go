package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"payments/internal/domain"
)

// Outcome is the result a provider reports for a single call.
type Outcome string

const (
	OutcomeApproved Outcome = "APPROVED"
	OutcomeDeclined Outcome = "DECLINED"
	OutcomeError    Outcome = "ERROR"
	OutcomeVoided   Outcome = "VOIDED"
)

// ProviderRequest describes one call against a payment provider.
type ProviderRequest struct {
	Instrument  *domain.Instrument
	Amount      domain.Money
	ReferenceID string

	// ProviderRef identifies the earlier provider operation being voided, charged or
	// credited. Empty for reservations, and for voids of calls whose outcome is unknown.
	ProviderRef string
}

// ProviderResult is what a provider returned.
type ProviderResult struct {
	Outcome     Outcome
	ProviderRef string
	Message     string
}

// ProviderGateway is the interface for a payment provider plugin.
// Void must be safe to repeat.
type ProviderGateway interface {
	Reserve(ctx context.Context, req ProviderRequest) (ProviderResult, error)
	Void(ctx context.Context, req ProviderRequest) (ProviderResult, error)
	Charge(ctx context.Context, req ProviderRequest) (ProviderResult, error)
	Credit(ctx context.Context, req ProviderRequest) (ProviderResult, error)
}

// ProviderRegistry resolves provider ids to gateways. Safe for concurrent use.
type ProviderRegistry struct {
	mu       sync.RWMutex
	gateways map[string]ProviderGateway
	breaker  BreakerConfig
	logger   *zap.Logger
}

// NewProviderRegistry creates an empty registry. When breaker.Enabled is set every
// registered gateway is wrapped in a circuit breaker.
func NewProviderRegistry(breaker BreakerConfig, logger *zap.Logger) *ProviderRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderRegistry{
		gateways: make(map[string]ProviderGateway),
		breaker:  breaker,
		logger:   logger,
	}
}

// Register adds or replaces the gateway for a provider id.
func (r *ProviderRegistry) Register(providerID string, gateway ProviderGateway) {
	if r.breaker.Enabled {
		gateway = newBreakerGateway(providerID, gateway, r.breaker, r.logger)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[providerID] = gateway
}

// Get returns the gateway registered for providerID.
func (r *ProviderRegistry) Get(providerID string) (ProviderGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gateway, ok := r.gateways[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerID)
	}
	return gateway, nil
}

// Has reports whether a gateway is registered for providerID.
func (r *ProviderRegistry) Has(providerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.gateways[providerID]
	return ok
}

// IDs returns the registered provider ids, sorted.
func (r *ProviderRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.gateways))
	for id := range r.gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// callWithTimeout runs call under a deadline. The deadline is enforced even when the
// gateway ignores its context; a late reply is discarded.
func callWithTimeout(
	ctx context.Context,
	timeout time.Duration,
	call func(context.Context) (ProviderResult, error),
) (ProviderResult, error) {
	if timeout <= 0 {
		return call(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		res ProviderResult
		err error
	}
	done := make(chan reply, 1)

	go func() {
		res, err := call(callCtx)
		done <- reply{res: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return ProviderResult{}, fmt.Errorf("%w after %s", ErrProviderTimeout, timeout)
		}
		return r.res, r.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return ProviderResult{}, fmt.Errorf("%w after %s", ErrProviderTimeout, timeout)
		}
		return ProviderResult{}, callCtx.Err()
	}
}

// statusFor maps a provider reply onto a ledger status. Any transport error, timeout,
// or unrecognised outcome is recorded as ERROR.
func statusFor(res ProviderResult, err error) domain.EventStatus {
	if err != nil {
		return domain.EventStatusError
	}
	switch res.Outcome {
	case OutcomeApproved:
		return domain.EventStatusApproved
	case OutcomeDeclined:
		return domain.EventStatusDeclined
	default:
		return domain.EventStatusError
	}
}

func messageFor(res ProviderResult, err error) string {
	if err != nil {
		return err.Error()
	}
	return res.Message
}
