package domain

import "time"

// InstrumentKind represents the kind of payment instrument.
type InstrumentKind string

const (
	InstrumentKindCard     InstrumentKind = "CARD"
	InstrumentKindGiftCard InstrumentKind = "GIFT_CARD"
	InstrumentKindWallet   InstrumentKind = "WALLET"
)

// Valid reports whether k is a known instrument kind.
func (k InstrumentKind) Valid() bool {
	switch k {
	case InstrumentKindCard, InstrumentKindGiftCard, InstrumentKindWallet:
		return true
	}
	return false
}

// Instrument is a stored payment method. ProviderID selects the gateway that serves it.
type Instrument struct {
	ID         string
	ProviderID string
	Kind       InstrumentKind
	Label      string
	CreatedAt  time.Time
}

// InstrumentSelection is one entry of a caller-supplied, ordered instrument list.
// A zero Limit means the instrument is unlimited for this reservation.
type InstrumentSelection struct {
	InstrumentID string
	Limit        Money
}

// Unlimited reports whether the selection carries no spending limit.
func (s InstrumentSelection) Unlimited() bool {
	return s.Limit.IsZero()
}

// Allocation is the amount assigned to one instrument by the allocator.
type Allocation struct {
	InstrumentID string
	Amount       Money
}
