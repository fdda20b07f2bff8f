package domain

import "fmt"

// Ledger is an in-memory view of the events recorded for one reference id.
// It indexes events by id and by parent once, at construction.
type Ledger struct {
	events   []*PaymentEvent
	byID     map[string]*PaymentEvent
	children map[string][]*PaymentEvent
}

// NewLedger indexes events. The input order is preserved by Events.
func NewLedger(events []*PaymentEvent) *Ledger {
	l := &Ledger{
		events:   make([]*PaymentEvent, 0, len(events)),
		byID:     make(map[string]*PaymentEvent, len(events)),
		children: make(map[string][]*PaymentEvent),
	}
	for _, e := range events {
		if e == nil {
			continue
		}
		l.events = append(l.events, e)
		l.byID[e.ID] = e
		if e.HasParent() {
			l.children[e.ParentID] = append(l.children[e.ParentID], e)
		}
	}
	return l
}

// Events returns the indexed events in input order.
func (l *Ledger) Events() []*PaymentEvent {
	out := make([]*PaymentEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of events.
func (l *Ledger) Len() int {
	return len(l.events)
}

// Get returns the event with the given id.
func (l *Ledger) Get(id string) (*PaymentEvent, bool) {
	e, ok := l.byID[id]
	return e, ok
}

// Parent returns the event that e settles against, if it is part of the ledger.
func (l *Ledger) Parent(e *PaymentEvent) (*PaymentEvent, bool) {
	if e == nil || !e.HasParent() {
		return nil, false
	}
	return l.Get(e.ParentID)
}

// Children returns the events whose parent is id, in input order.
func (l *Ledger) Children(id string) []*PaymentEvent {
	return l.children[id]
}

// Reservations returns the RESERVE events, the roots of the ledger forest.
func (l *Ledger) Reservations() []*PaymentEvent {
	var out []*PaymentEvent
	for _, e := range l.events {
		if e.Type == EventTypeReserve {
			out = append(out, e)
		}
	}
	return out
}

// Settled sums the approved children of parentID with the given type.
func (l *Ledger) Settled(parentID string, childType EventType) (Money, error) {
	parent, ok := l.byID[parentID]
	if !ok {
		return Money{}, fmt.Errorf("%w: %s", ErrUnknownEvent, parentID)
	}

	total := Zero(parent.Amount.Currency())
	for _, child := range l.children[parentID] {
		if child.Type != childType || !child.Approved() {
			continue
		}
		sum, err := total.Add(child.Amount)
		if err != nil {
			return Money{}, err
		}
		total = sum
	}
	return total, nil
}

// Remaining returns the parent's amount minus what its approved children of childType
// have already settled.
func (l *Ledger) Remaining(parentID string, childType EventType) (Money, error) {
	settled, err := l.Settled(parentID, childType)
	if err != nil {
		return Money{}, err
	}
	return l.byID[parentID].Amount.Sub(settled)
}

// ReservationAttempts groups RESERVE events by saga invocation, in ledger order.
// Each invocation starts with an event flagged OriginalInstrument.
func (l *Ledger) ReservationAttempts() [][]*PaymentEvent {
	var attempts [][]*PaymentEvent
	for _, e := range l.events {
		if e.Type != EventTypeReserve {
			continue
		}
		if e.OriginalInstrument || len(attempts) == 0 {
			attempts = append(attempts, nil)
		}
		last := len(attempts) - 1
		attempts[last] = append(attempts[last], e)
	}
	return attempts
}

// PlacedReservation returns the RESERVE events of the invocation that recorded every
// planned step as approved. Holds from failed invocations were voided and are excluded,
// and so are invocations whose ledger writes stopped before the last step.
func (l *Ledger) PlacedReservation() ([]*PaymentEvent, bool) {
	for _, attempt := range l.ReservationAttempts() {
		if complete(attempt) {
			return attempt, true
		}
	}
	return nil, false
}

func complete(attempt []*PaymentEvent) bool {
	planned := attempt[0].PlannedSteps
	if planned < 1 || len(attempt) != planned {
		return false
	}
	for _, e := range attempt {
		if !e.Approved() || e.PlannedSteps != planned {
			return false
		}
	}
	return true
}
