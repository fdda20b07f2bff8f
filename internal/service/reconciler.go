package service

import (
	"fmt"

	"payments/internal/domain"
)

// LedgerSummary is the settled position of one ledger.
type LedgerSummary struct {
	Currency       string
	AmountCharged  domain.Money
	AmountRefunded domain.Money
	Net            domain.Money // AmountCharged - AmountRefunded
	EventCount     int
}

// Reconcile folds a ledger into charged and refunded totals.
//
// Only approved CHARGE and CREDIT events count; reservations are holds, not settled
// money. The result does not depend on event order or on parent links. currency is
// the ledger's declared currency; when empty the first event's currency is used.
func Reconcile(currency string, events []*domain.PaymentEvent) (LedgerSummary, error) {
	if currency == "" && len(events) > 0 && events[0] != nil {
		currency = events[0].Amount.Currency()
	}

	charged := domain.Zero(currency)
	refunded := domain.Zero(currency)
	count := 0

	for _, e := range events {
		if e == nil {
			continue
		}
		count++

		if e.Amount.Currency() != charged.Currency() {
			return LedgerSummary{}, fmt.Errorf("%w: event %s is %s, ledger is %s",
				ErrMixedCurrencyLedger, e.ID, e.Amount.Currency(), charged.Currency())
		}
		if !e.Approved() {
			continue
		}

		var err error
		switch e.Type {
		case domain.EventTypeCharge:
			charged, err = charged.Add(e.Amount)
		case domain.EventTypeCredit:
			refunded, err = refunded.Add(e.Amount)
		}
		if err != nil {
			return LedgerSummary{}, err
		}
	}

	net, err := charged.Sub(refunded)
	if err != nil {
		return LedgerSummary{}, err
	}

	return LedgerSummary{
		Currency:       charged.Currency(),
		AmountCharged:  charged,
		AmountRefunded: refunded,
		Net:            net,
		EventCount:     count,
	}, nil
}
