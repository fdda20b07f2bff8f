package tests

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"payments/internal/domain"
	"payments/internal/service"
)

func mockRequest(instrumentID, amount, providerRef string) service.ProviderRequest {
	return service.ProviderRequest{
		Instrument:  &domain.Instrument{ID: instrumentID, ProviderID: service.MockProviderID},
		Amount:      cad(amount),
		ReferenceID: "order-1",
		ProviderRef: providerRef,
	}
}

func TestMockProvider_HoldsAgainstBalance(t *testing.T) {
	ctx := context.Background()
	p := service.NewMockProvider()
	p.SetBalance("gc", cad("20"))

	res, err := p.Reserve(ctx, mockRequest("gc", "15", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != service.OutcomeApproved || res.ProviderRef == "" {
		t.Fatalf("expected an approved hold, got %+v", res)
	}

	declined, _ := p.Reserve(ctx, mockRequest("gc", "6", ""))
	if declined.Outcome != service.OutcomeDeclined {
		t.Errorf("expected decline over the remaining balance, got %s", declined.Outcome)
	}

	if _, err := p.Void(ctx, mockRequest("gc", "15", res.ProviderRef)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance, _ := p.Balance("gc"); !balance.Equal(cad("20")) {
		t.Errorf("expected the void to restore 20, got %s", balance)
	}

	// Voiding again is harmless.
	again, err := p.Void(ctx, mockRequest("gc", "15", res.ProviderRef))
	if err != nil || again.Outcome != service.OutcomeVoided {
		t.Errorf("expected a repeated void to succeed, got %+v %v", again, err)
	}
	if balance, _ := p.Balance("gc"); !balance.Equal(cad("20")) {
		t.Errorf("a repeated void must not credit twice, got %s", balance)
	}
}

func TestMockProvider_VoidWithoutReference(t *testing.T) {
	ctx := context.Background()
	p := service.NewMockProvider()
	p.SetBalance("gc", cad("10"))

	if _, err := p.Reserve(ctx, mockRequest("gc", "4", "")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := p.Void(ctx, mockRequest("gc", "4", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != service.OutcomeVoided || res.ProviderRef == "" {
		t.Errorf("expected the hold to be found by reference, got %+v", res)
	}
	if balance, _ := p.Balance("gc"); !balance.Equal(cad("10")) {
		t.Errorf("expected balance 10, got %s", balance)
	}
}

func TestMockProvider_UnlimitedInstrumentAndCredit(t *testing.T) {
	ctx := context.Background()
	p := service.NewMockProvider()

	res, _ := p.Reserve(ctx, mockRequest("card", "1000000", ""))
	if res.Outcome != service.OutcomeApproved {
		t.Errorf("expected an instrument without a balance to approve, got %s", res.Outcome)
	}

	p.SetBalance("gc", cad("5"))
	if _, err := p.Credit(ctx, mockRequest("gc", "2.50", "")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance, _ := p.Balance("gc"); !balance.Equal(cad("7.5")) {
		t.Errorf("expected credit to restore balance to 7.5, got %s", balance)
	}
}

// flakyGateway fails every call until healthy is set.
type flakyGateway struct {
	*MockGateway
	healthy bool
}

func (g *flakyGateway) Charge(ctx context.Context, req service.ProviderRequest) (service.ProviderResult, error) {
	if !g.healthy {
		g.record("Charge", req)
		return service.ProviderResult{}, ErrMockTransport
	}
	return g.MockGateway.Charge(ctx, req)
}

func TestProviderRegistry_BreakerOpensAndRecovers(t *testing.T) {
	gateway := &flakyGateway{MockGateway: NewMockGateway()}
	registry := service.NewProviderRegistry(service.BreakerConfig{
		Enabled:             true,
		ConsecutiveFailures: 3,
		Timeout:             50 * time.Millisecond,
	}, zap.NewNop())
	registry.Register("flaky", gateway)

	wrapped, err := registry.Get("flaky")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := wrapped.Charge(ctx, mockRequest("A", "1", "")); !errors.Is(err, ErrMockTransport) {
			t.Fatalf("call %d: expected transport error, got %v", i, err)
		}
	}

	_, err = wrapped.Charge(ctx, mockRequest("A", "1", ""))
	if err == nil || !strings.Contains(err.Error(), "unavailable") {
		t.Errorf("expected the open breaker to reject the call, got %v", err)
	}
	if got := len(gateway.CallsFor("Charge")); got != 3 {
		t.Errorf("expected 3 calls to reach the gateway, got %d", got)
	}

	// Voids are never blocked.
	if res, err := wrapped.Void(ctx, mockRequest("A", "1", "ref")); err != nil || res.Outcome != service.OutcomeVoided {
		t.Errorf("expected void through an open breaker, got %+v %v", res, err)
	}

	time.Sleep(60 * time.Millisecond)
	gateway.healthy = true

	res, err := wrapped.Charge(ctx, mockRequest("A", "1", ""))
	if err != nil || res.Outcome != service.OutcomeApproved {
		t.Errorf("expected the half-open probe to succeed, got %+v %v", res, err)
	}
}

func TestProviderRegistry_DeclinesDoNotTripBreaker(t *testing.T) {
	gateway := NewMockGateway()
	gateway.ChargeOutcome = service.OutcomeDeclined

	registry := service.NewProviderRegistry(service.BreakerConfig{Enabled: true, ConsecutiveFailures: 2, Timeout: time.Minute}, nil)
	registry.Register("p", gateway)
	wrapped, _ := registry.Get("p")

	for i := 0; i < 5; i++ {
		res, err := wrapped.Charge(context.Background(), mockRequest("A", "1", ""))
		if err != nil || res.Outcome != service.OutcomeDeclined {
			t.Fatalf("call %d: expected a decline, got %+v %v", i, res, err)
		}
	}
}

func TestProviderRegistry_Lookup(t *testing.T) {
	registry := service.NewProviderRegistry(service.BreakerConfig{}, nil)
	registry.Register("b", NewMockGateway())
	registry.Register("a", NewMockGateway())

	if !registry.Has("a") || registry.Has("c") {
		t.Error("unexpected Has result")
	}
	if _, err := registry.Get("c"); !errors.Is(err, service.ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
	if ids := registry.IDs(); strings.Join(ids, ",") != "a,b" {
		t.Errorf("expected sorted ids a,b, got %v", ids)
	}
}

func TestInstrumentService_Register(t *testing.T) {
	repo := NewMockInstrumentRepository()
	registry := service.NewProviderRegistry(service.BreakerConfig{}, nil)
	registry.Register(service.MockProviderID, service.NewMockProvider())
	svc := service.NewInstrumentService(repo, registry)
	ctx := context.Background()

	instrument, err := svc.Register(ctx, service.RegisterInstrumentRequest{
		ProviderID: service.MockProviderID,
		Kind:       domain.InstrumentKindGiftCard,
		Label:      "Holiday card",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if instrument.ID == "" || instrument.CreatedAt.IsZero() {
		t.Errorf("expected id and creation time, got %+v", instrument)
	}

	stored, err := svc.Get(ctx, instrument.ID)
	if err != nil || stored.Label != "Holiday card" {
		t.Errorf("expected stored instrument, got %+v %v", stored, err)
	}

	if _, err := svc.Register(ctx, service.RegisterInstrumentRequest{ProviderID: service.MockProviderID, Kind: "CHEQUE"}); !errors.Is(err, service.ErrInvalidInstrumentKind) {
		t.Errorf("expected ErrInvalidInstrumentKind, got %v", err)
	}
	if _, err := svc.Register(ctx, service.RegisterInstrumentRequest{ProviderID: "acme", Kind: domain.InstrumentKindCard}); !errors.Is(err, service.ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
	if _, err := svc.Get(ctx, ""); !errors.Is(err, service.ErrInvalidInstrumentID) {
		t.Errorf("expected ErrInvalidInstrumentID, got %v", err)
	}

	repo.CreateError = ErrMockDBUnavailable
	if _, err := svc.Register(ctx, service.RegisterInstrumentRequest{ProviderID: service.MockProviderID, Kind: domain.InstrumentKindWallet}); !errors.Is(err, ErrMockDBUnavailable) {
		t.Errorf("expected store error, got %v", err)
	}

	all, err := svc.List(ctx)
	if err != nil || len(all) != 1 {
		t.Errorf("expected one instrument, got %d %v", len(all), err)
	}
}
