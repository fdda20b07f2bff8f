package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"payments/internal/domain"
)

// MockProviderID is the provider id the mock gateway is registered under.
const MockProviderID = "mock"

type mockHold struct {
	instrumentID string
	referenceID  string
	amount       domain.Money
}

// MockProvider is an in-memory stored-value provider, like a gift card processor.
// Instruments without a configured balance approve every reservation.
type MockProvider struct {
	mu       sync.Mutex
	balances map[string]domain.Money
	holds    map[string]mockHold
}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		balances: make(map[string]domain.Money),
		holds:    make(map[string]mockHold),
	}
}

// SetBalance configures the available balance of an instrument.
func (p *MockProvider) SetBalance(instrumentID string, balance domain.Money) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[instrumentID] = balance
}

// Balance returns the available balance of an instrument, if one is configured.
func (p *MockProvider) Balance(instrumentID string) (domain.Money, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.balances[instrumentID]
	return b, ok
}

// Reserve places a hold, declining when the configured balance cannot cover it.
func (p *MockProvider) Reserve(ctx context.Context, req ProviderRequest) (ProviderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := req.Instrument.ID
	if balance, ok := p.balances[id]; ok {
		cmp, err := balance.Cmp(req.Amount)
		if err != nil {
			return ProviderResult{Outcome: OutcomeDeclined, Message: "currency not supported"}, nil
		}
		if cmp < 0 {
			return ProviderResult{Outcome: OutcomeDeclined, Message: "insufficient balance"}, nil
		}
		p.balances[id], _ = balance.Sub(req.Amount)
	}

	ref := uuid.New().String()
	p.holds[ref] = mockHold{instrumentID: id, referenceID: req.ReferenceID, amount: req.Amount}

	return ProviderResult{Outcome: OutcomeApproved, ProviderRef: ref}, nil
}

// Void releases a hold. Voiding an unknown or already voided hold succeeds.
// Without a ProviderRef the hold is found by instrument and reference id.
func (p *MockProvider) Void(ctx context.Context, req ProviderRequest) (ProviderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ref := req.ProviderRef
	if ref == "" {
		for r, h := range p.holds {
			if h.instrumentID == req.Instrument.ID && h.referenceID == req.ReferenceID && h.amount.Equal(req.Amount) {
				ref = r
				break
			}
		}
	}

	if hold, ok := p.holds[ref]; ok {
		if balance, ok := p.balances[hold.instrumentID]; ok {
			p.balances[hold.instrumentID], _ = balance.Add(hold.amount)
		}
		delete(p.holds, ref)
	}

	return ProviderResult{Outcome: OutcomeVoided, ProviderRef: ref}, nil
}

// Charge settles part of a hold. Always approves.
func (p *MockProvider) Charge(ctx context.Context, req ProviderRequest) (ProviderResult, error) {
	return ProviderResult{Outcome: OutcomeApproved, ProviderRef: uuid.New().String()}, nil
}

// Credit refunds part of a charge back to the instrument.
func (p *MockProvider) Credit(ctx context.Context, req ProviderRequest) (ProviderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if balance, ok := p.balances[req.Instrument.ID]; ok {
		if next, err := balance.Add(req.Amount); err == nil {
			p.balances[req.Instrument.ID] = next
		}
	}

	return ProviderResult{Outcome: OutcomeApproved, ProviderRef: uuid.New().String()}, nil
}
