package service

import "errors"

var (
	// ErrInvalidReferenceID is returned when the reference id is empty.
	ErrInvalidReferenceID = errors.New("invalid reference id")

	// ErrInvalidPaymentAmount is returned when a requested amount is not positive.
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")

	// ErrInvalidLimit is returned when an instrument limit is negative.
	ErrInvalidLimit = errors.New("invalid instrument limit")

	// ErrNoSelections is returned when a reservation names no instruments.
	ErrNoSelections = errors.New("no instruments selected")

	// ErrDuplicateSelection is returned when an instrument is selected twice.
	ErrDuplicateSelection = errors.New("instrument selected more than once")

	// ErrInsufficientInstrumentCapacity is returned when the selected limits cannot cover the total.
	ErrInsufficientInstrumentCapacity = errors.New("insufficient instrument capacity")

	// ErrUnknownProvider is returned when no gateway is registered for a provider id.
	ErrUnknownProvider = errors.New("unknown payment provider")

	// ErrMixedCurrencyLedger is returned when a ledger carries more than one currency.
	ErrMixedCurrencyLedger = errors.New("ledger mixes currencies")

	// ErrCompensationFailure wraps a void that failed while compensating a saga.
	ErrCompensationFailure = errors.New("compensation failed")

	// ErrLedgerAppend is returned when an event could not be written to the event store.
	ErrLedgerAppend = errors.New("failed to append ledger event")

	// ErrProviderTimeout is recorded when a provider call exceeds its deadline.
	ErrProviderTimeout = errors.New("provider call timed out")

	// ErrProviderUnavailable is returned when a provider's circuit breaker refused the
	// call. The provider was not contacted.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrReservationExists is returned when a reference id already has a placed reservation.
	ErrReservationExists = errors.New("reservation already exists for reference id")

	// ErrLedgerLocked is returned when another operation holds the lock for a reference id.
	ErrLedgerLocked = errors.New("ledger locked by another operation")

	// ErrInvalidEventID is returned when an event ID is empty.
	ErrInvalidEventID = errors.New("invalid event id")

	// ErrInvalidParentEvent is returned when a charge or credit targets an event it cannot settle.
	ErrInvalidParentEvent = errors.New("invalid parent event")

	// ErrAmountExceedsRemaining is returned when a charge or credit exceeds what is left to settle.
	ErrAmountExceedsRemaining = errors.New("amount exceeds remaining balance")

	// ErrInvalidInstrumentID is returned when an instrument ID is empty.
	ErrInvalidInstrumentID = errors.New("invalid instrument id")

	// ErrInvalidInstrumentKind is returned when an instrument kind is unknown.
	ErrInvalidInstrumentKind = errors.New("invalid instrument kind")
)
