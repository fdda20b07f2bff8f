package domain

import "time"

// EventType represents the kind of ledger event.
type EventType string

const (
	EventTypeReserve EventType = "RESERVE"
	EventTypeCharge  EventType = "CHARGE"
	EventTypeCredit  EventType = "CREDIT"
)

// EventStatus represents the provider outcome recorded by a ledger event.
type EventStatus string

const (
	EventStatusApproved EventStatus = "APPROVED"
	EventStatusDeclined EventStatus = "DECLINED"
	EventStatusError    EventStatus = "ERROR"
)

// PaymentEvent is an immutable ledger entry, created once per provider call outcome.
//
// ParentID links a CHARGE to the RESERVE it settles and a CREDIT to the CHARGE it
// refunds. RESERVE events have an empty ParentID.
//
// PlannedSteps is set on RESERVE events to the number of steps their saga invocation
// planned, so a ledger can tell a complete invocation from one cut short.
type PaymentEvent struct {
	ID                 string
	ParentID           string
	Type               EventType
	Status             EventStatus
	Amount             Money
	InstrumentID       string
	OriginalInstrument bool
	PlannedSteps       int
	ReferenceID        string
	ProviderRef        string // Provider-side reference, e.g. an authorization id
	Message            string
	CreatedAt          time.Time
}

// Approved reports whether the provider approved the event.
func (e *PaymentEvent) Approved() bool {
	return e.Status == EventStatusApproved
}

// HasParent reports whether the event settles against another event.
func (e *PaymentEvent) HasParent() bool {
	return e.ParentID != ""
}
