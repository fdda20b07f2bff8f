package domain

import "errors"

var (
	// ErrInvalidCurrency is returned when Money values of different currencies are combined
	// or when a currency code is not a valid ISO 4217 code.
	ErrInvalidCurrency = errors.New("invalid currency")

	// ErrInvalidAmount is returned when an amount cannot be parsed.
	ErrInvalidAmount = errors.New("invalid amount")
)

// ErrUnknownEvent is returned when a ledger lookup names an event outside the ledger.
var ErrUnknownEvent = errors.New("event not in ledger")
