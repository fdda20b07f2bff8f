package service

import (
	"fmt"

	"payments/internal/domain"
)

// Allocate splits total across selections in the order given.
//
// Each instrument takes as much of the remainder as its limit allows (all of it when
// unlimited). Instruments that would receive nothing are omitted. When the limits are
// too small the plan covers less than total; callers compare PlanTotal with total.
func Allocate(total domain.Money, selections []domain.InstrumentSelection) ([]domain.Allocation, error) {
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPaymentAmount, total)
	}

	remaining := total
	allocations := make([]domain.Allocation, 0, len(selections))

	for _, sel := range selections {
		if !remaining.IsPositive() {
			break
		}

		allocated := remaining
		if !sel.Unlimited() {
			if sel.Limit.IsNegative() {
				return nil, fmt.Errorf("%w: %s for instrument %s", ErrInvalidLimit, sel.Limit, sel.InstrumentID)
			}

			var err error
			allocated, err = remaining.Min(sel.Limit)
			if err != nil {
				return nil, fmt.Errorf("limit for instrument %s: %w", sel.InstrumentID, err)
			}
		}

		if !allocated.IsPositive() {
			continue
		}

		allocations = append(allocations, domain.Allocation{
			InstrumentID: sel.InstrumentID,
			Amount:       domain.NewMoney(allocated.Amount(), total.Currency()),
		})

		next, err := remaining.Sub(allocated)
		if err != nil {
			return nil, err
		}
		remaining = next
	}

	return allocations, nil
}

// PlanTotal sums the allocated amounts. An empty plan totals zero in currency.
func PlanTotal(currency string, allocations []domain.Allocation) (domain.Money, error) {
	sum := domain.Zero(currency)
	for _, a := range allocations {
		next, err := sum.Add(a.Amount)
		if err != nil {
			return domain.Money{}, err
		}
		sum = next
	}
	return sum, nil
}
