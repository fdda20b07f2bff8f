package tests

import (
	"errors"
	"testing"
	"time"

	"payments/internal/domain"
)

// ledgerEvent builds a CAD event on reference "order-1".
func ledgerEvent(id, parentID string, eventType domain.EventType, status domain.EventStatus, amount string) *domain.PaymentEvent {
	return &domain.PaymentEvent{
		ID:           id,
		ParentID:     parentID,
		Type:         eventType,
		Status:       status,
		Amount:       cad(amount),
		InstrumentID: "A",
		ReferenceID:  "order-1",
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func reserveEvent(id string, status domain.EventStatus, amount string, original bool) *domain.PaymentEvent {
	e := ledgerEvent(id, "", domain.EventTypeReserve, status, amount)
	e.OriginalInstrument = original
	return e
}

// invocation marks events as the complete record of one saga invocation.
func invocation(events ...*domain.PaymentEvent) []*domain.PaymentEvent {
	for _, e := range events {
		e.PlannedSteps = len(events)
	}
	return events
}

const (
	approved = domain.EventStatusApproved
	declined = domain.EventStatusDeclined
)

func TestLedger_SettledAndRemaining(t *testing.T) {
	t.Parallel()

	ledger := domain.NewLedger([]*domain.PaymentEvent{
		reserveEvent("r1", approved, "100", true),
		ledgerEvent("c1", "r1", domain.EventTypeCharge, approved, "30"),
		ledgerEvent("c2", "r1", domain.EventTypeCharge, declined, "50"),
		ledgerEvent("c3", "r1", domain.EventTypeCharge, approved, "20"),
		ledgerEvent("x1", "c1", domain.EventTypeCredit, approved, "10"),
	})

	settled, err := ledger.Settled("r1", domain.EventTypeCharge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !settled.Equal(cad("50")) {
		t.Errorf("expected 50 charged against r1, got %s", settled)
	}

	remaining, err := ledger.Remaining("r1", domain.EventTypeCharge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !remaining.Equal(cad("50")) {
		t.Errorf("expected 50 left to charge, got %s", remaining)
	}

	refundable, err := ledger.Remaining("c1", domain.EventTypeCredit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !refundable.Equal(cad("20")) {
		t.Errorf("expected 20 left to credit on c1, got %s", refundable)
	}

	if _, err := ledger.Settled("missing", domain.EventTypeCharge); !errors.Is(err, domain.ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestLedger_ParentAndChildren(t *testing.T) {
	t.Parallel()

	r1 := reserveEvent("r1", approved, "100", true)
	c1 := ledgerEvent("c1", "r1", domain.EventTypeCharge, approved, "30")
	orphan := ledgerEvent("c9", "gone", domain.EventTypeCharge, approved, "5")

	ledger := domain.NewLedger([]*domain.PaymentEvent{r1, c1, nil, orphan})

	if ledger.Len() != 3 {
		t.Errorf("expected nil events to be skipped, got %d", ledger.Len())
	}
	if parent, ok := ledger.Parent(c1); !ok || parent.ID != "r1" {
		t.Errorf("expected c1 parent r1, got %v", parent)
	}
	if _, ok := ledger.Parent(orphan); ok {
		t.Error("expected no parent for an event settling outside the ledger")
	}
	if _, ok := ledger.Parent(r1); ok {
		t.Error("reservations have no parent")
	}
	if children := ledger.Children("r1"); len(children) != 1 || children[0].ID != "c1" {
		t.Errorf("unexpected children of r1: %v", children)
	}
	if reservations := ledger.Reservations(); len(reservations) != 1 {
		t.Errorf("expected 1 reservation, got %d", len(reservations))
	}
}

func TestLedger_PlacedReservationSkipsFailedAttempts(t *testing.T) {
	t.Parallel()

	var events []*domain.PaymentEvent
	// First invocation: A approved, B declined, compensated.
	events = append(events, invocation(
		reserveEvent("a1", approved, "8", true),
		reserveEvent("b1", declined, "2", false),
	)...)
	// Retry: both approved.
	events = append(events, invocation(
		reserveEvent("a2", approved, "8", true),
		reserveEvent("b2", approved, "2", false),
	)...)
	events = append(events, ledgerEvent("c1", "a2", domain.EventTypeCharge, approved, "8"))

	ledger := domain.NewLedger(events)

	attempts := ledger.ReservationAttempts()
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if len(attempts[0]) != 2 || len(attempts[1]) != 2 {
		t.Errorf("expected two events per attempt, got %d and %d", len(attempts[0]), len(attempts[1]))
	}

	placed, ok := ledger.PlacedReservation()
	if !ok {
		t.Fatal("expected a placed reservation")
	}
	if placed[0].ID != "a2" || placed[1].ID != "b2" {
		t.Errorf("expected the retry to be placed, got %s,%s", placed[0].ID, placed[1].ID)
	}
}

func TestLedger_NoPlacedReservation(t *testing.T) {
	t.Parallel()

	ledger := domain.NewLedger(invocation(
		reserveEvent("a1", approved, "8", true),
		reserveEvent("b1", domain.EventStatusError, "2", false),
	))

	if _, ok := ledger.PlacedReservation(); ok {
		t.Error("a failed invocation must not count as placed")
	}

	empty := domain.NewLedger(nil)
	if _, ok := empty.PlacedReservation(); ok {
		t.Error("an empty ledger has no placed reservation")
	}
}

func TestLedger_IncompleteInvocationIsNotPlaced(t *testing.T) {
	t.Parallel()

	// Three steps planned; the ledger write for the third failed after A and B were
	// approved, so the holds were voided.
	a1 := reserveEvent("a1", approved, "5", true)
	b1 := reserveEvent("b1", approved, "3", false)
	a1.PlannedSteps, b1.PlannedSteps = 3, 3

	ledger := domain.NewLedger([]*domain.PaymentEvent{a1, b1})
	if _, ok := ledger.PlacedReservation(); ok {
		t.Error("an invocation missing a planned step must not count as placed")
	}

	// Events recorded without a planned step count cannot prove a placement.
	legacy := domain.NewLedger([]*domain.PaymentEvent{reserveEvent("r1", approved, "10", true)})
	if _, ok := legacy.PlacedReservation(); ok {
		t.Error("expected a reservation without a planned step count to be unplaced")
	}

	// The retry that follows is complete.
	retry := domain.NewLedger(append([]*domain.PaymentEvent{a1, b1}, invocation(
		reserveEvent("a2", approved, "8", true),
	)...))
	placed, ok := retry.PlacedReservation()
	if !ok || len(placed) != 1 || placed[0].ID != "a2" {
		t.Errorf("expected the retry to be placed, got %v", placed)
	}
}
