package tests

import (
	"errors"
	"math/rand"
	"testing"

	"payments/internal/domain"
	"payments/internal/service"
)

func assertSummary(t *testing.T, summary service.LedgerSummary, charged, refunded, net string) {
	t.Helper()
	if !summary.AmountCharged.Equal(cad(charged)) {
		t.Errorf("expected charged %s, got %s", charged, summary.AmountCharged)
	}
	if !summary.AmountRefunded.Equal(cad(refunded)) {
		t.Errorf("expected refunded %s, got %s", refunded, summary.AmountRefunded)
	}
	if !summary.Net.Equal(cad(net)) {
		t.Errorf("expected net %s, got %s", net, summary.Net)
	}
}

func TestReconcile_ChargesOnly(t *testing.T) {
	t.Parallel()

	events := []*domain.PaymentEvent{
		reserveEvent("r1", approved, "100", true),
		ledgerEvent("c1", "r1", domain.EventTypeCharge, approved, "70"),
	}

	summary, err := service.Reconcile("CAD", events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertSummary(t, summary, "70", "0", "70")
	if summary.Currency != "CAD" || summary.EventCount != 2 {
		t.Errorf("unexpected summary metadata: %+v", summary)
	}
}

func TestReconcile_ChargeAndCredit(t *testing.T) {
	t.Parallel()

	events := []*domain.PaymentEvent{
		reserveEvent("r1", approved, "100", true),
		ledgerEvent("c1", "r1", domain.EventTypeCharge, approved, "70"),
		ledgerEvent("x1", "c1", domain.EventTypeCredit, approved, "10"),
	}

	summary, err := service.Reconcile("CAD", events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertSummary(t, summary, "70", "10", "60")
}

func TestReconcile_IgnoresUnapprovedEvents(t *testing.T) {
	t.Parallel()

	events := []*domain.PaymentEvent{
		reserveEvent("r1", approved, "100", true),
		ledgerEvent("c1", "r1", domain.EventTypeCharge, declined, "70"),
		ledgerEvent("c2", "r1", domain.EventTypeCharge, domain.EventStatusError, "30"),
		ledgerEvent("c3", "r1", domain.EventTypeCharge, approved, "25"),
		ledgerEvent("x1", "c3", domain.EventTypeCredit, declined, "5"),
	}

	summary, err := service.Reconcile("CAD", events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertSummary(t, summary, "25", "0", "25")
	if summary.EventCount != 5 {
		t.Errorf("expected every event to be counted, got %d", summary.EventCount)
	}
}

func TestReconcile_OrderIndependent(t *testing.T) {
	t.Parallel()

	events := []*domain.PaymentEvent{
		reserveEvent("r1", approved, "60", true),
		reserveEvent("r2", approved, "40", false),
		ledgerEvent("c1", "r1", domain.EventTypeCharge, approved, "60"),
		ledgerEvent("c2", "r2", domain.EventTypeCharge, approved, "15.55"),
		ledgerEvent("x1", "c1", domain.EventTypeCredit, approved, "12.30"),
		ledgerEvent("x2", "c2", domain.EventTypeCredit, approved, "0.05"),
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]*domain.PaymentEvent, len(events))
		copy(shuffled, events)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		summary, err := service.Reconcile("CAD", shuffled)
		if err != nil {
			t.Fatalf("permutation %d: unexpected error: %v", i, err)
		}
		assertSummary(t, summary, "75.55", "12.35", "63.2")
	}
}

func TestReconcile_EmptyLedger(t *testing.T) {
	t.Parallel()

	summary, err := service.Reconcile("CAD", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSummary(t, summary, "0", "0", "0")
	if summary.EventCount != 0 {
		t.Errorf("expected no events, got %d", summary.EventCount)
	}
}

func TestReconcile_InfersCurrencyFromFirstEvent(t *testing.T) {
	t.Parallel()

	events := []*domain.PaymentEvent{
		ledgerEvent("c1", "r1", domain.EventTypeCharge, approved, "9"),
	}

	summary, err := service.Reconcile("", events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Currency != "CAD" {
		t.Errorf("expected CAD, got %q", summary.Currency)
	}
}

func TestReconcile_MixedCurrencyRejected(t *testing.T) {
	t.Parallel()

	usdCharge := ledgerEvent("c2", "r1", domain.EventTypeCharge, approved, "5")
	usdCharge.Amount = money("5", "USD")

	events := []*domain.PaymentEvent{
		ledgerEvent("c1", "r1", domain.EventTypeCharge, approved, "10"),
		usdCharge,
	}

	if _, err := service.Reconcile("CAD", events); !errors.Is(err, service.ErrMixedCurrencyLedger) {
		t.Errorf("expected ErrMixedCurrencyLedger, got %v", err)
	}

	// A declined event in another currency still breaks the ledger.
	usdCharge.Status = declined
	if _, err := service.Reconcile("CAD", events); !errors.Is(err, service.ErrMixedCurrencyLedger) {
		t.Errorf("expected ErrMixedCurrencyLedger for declined event, got %v", err)
	}
}
