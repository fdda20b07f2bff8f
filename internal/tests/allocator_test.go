package tests

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"payments/internal/domain"
	"payments/internal/service"
)

func TestAllocate_SingleUnlimitedInstrument(t *testing.T) {
	t.Parallel()

	allocations, err := service.Allocate(cad("10"), []domain.InstrumentSelection{selection("A", "")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(allocations) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(allocations))
	}
	if allocations[0].InstrumentID != "A" || !allocations[0].Amount.Equal(cad("10")) {
		t.Errorf("expected A=10 CAD, got %s=%s", allocations[0].InstrumentID, allocations[0].Amount)
	}
}

func TestAllocate_SpillsOverInOrder(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		selections []domain.InstrumentSelection
		want       []domain.Allocation
	}{
		{
			name:       "last instrument takes the remainder",
			selections: []domain.InstrumentSelection{selection("A", "8"), selection("B", "1"), selection("C", "")},
			want: []domain.Allocation{
				{InstrumentID: "A", Amount: cad("8")},
				{InstrumentID: "B", Amount: cad("1")},
				{InstrumentID: "C", Amount: cad("1")},
			},
		},
		{
			name:       "instrument with nothing left is omitted",
			selections: []domain.InstrumentSelection{selection("A", "9"), selection("B", "1"), selection("C", "")},
			want: []domain.Allocation{
				{InstrumentID: "A", Amount: cad("9")},
				{InstrumentID: "B", Amount: cad("1")},
			},
		},
		{
			name:       "unlimited first instrument takes everything",
			selections: []domain.InstrumentSelection{selection("A", ""), selection("B", "5")},
			want: []domain.Allocation{
				{InstrumentID: "A", Amount: cad("10")},
			},
		},
		{
			name:       "limit larger than total",
			selections: []domain.InstrumentSelection{selection("A", "25.50")},
			want: []domain.Allocation{
				{InstrumentID: "A", Amount: cad("10")},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := service.Allocate(cad("10"), tc.selections)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d allocations, got %d: %v", len(tc.want), len(got), got)
			}
			for i := range tc.want {
				if got[i].InstrumentID != tc.want[i].InstrumentID || !got[i].Amount.Equal(tc.want[i].Amount) {
					t.Errorf("allocation %d: expected %s=%s, got %s=%s",
						i, tc.want[i].InstrumentID, tc.want[i].Amount, got[i].InstrumentID, got[i].Amount)
				}
			}
		})
	}
}

func TestAllocate_InsufficientLimitsCoverLess(t *testing.T) {
	t.Parallel()

	allocations, err := service.Allocate(cad("10"), []domain.InstrumentSelection{selection("A", "5")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	planned, err := service.PlanTotal("CAD", allocations)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !planned.Equal(cad("5")) {
		t.Errorf("expected plan to cover 5 CAD, got %s", planned)
	}
}

func TestAllocate_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	t.Run("negative total", func(t *testing.T) {
		_, err := service.Allocate(cad("-1"), []domain.InstrumentSelection{selection("A", "")})
		if !errors.Is(err, service.ErrInvalidPaymentAmount) {
			t.Errorf("expected ErrInvalidPaymentAmount, got %v", err)
		}
	})

	t.Run("negative limit", func(t *testing.T) {
		_, err := service.Allocate(cad("10"), []domain.InstrumentSelection{selection("A", "-3")})
		if !errors.Is(err, service.ErrInvalidLimit) {
			t.Errorf("expected ErrInvalidLimit, got %v", err)
		}
	})

	t.Run("limit in another currency", func(t *testing.T) {
		_, err := service.Allocate(cad("10"), []domain.InstrumentSelection{
			{InstrumentID: "A", Limit: money("5", "USD")},
		})
		if !errors.Is(err, domain.ErrInvalidCurrency) {
			t.Errorf("expected ErrInvalidCurrency, got %v", err)
		}
	})
}

func TestAllocate_ZeroTotalAllocatesNothing(t *testing.T) {
	t.Parallel()

	allocations, err := service.Allocate(cad("0"), []domain.InstrumentSelection{selection("A", "")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocations) != 0 {
		t.Errorf("expected no allocations, got %v", allocations)
	}
}

// TestAllocate_Properties checks the allocation invariants over generated inputs.
func TestAllocate_Properties(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		total := cad(decimal.New(rng.Int63n(100000), -2).String())

		n := 1 + rng.Intn(5)
		selections := make([]domain.InstrumentSelection, n)
		limitSum := decimal.Zero
		unlimited := false
		for j := range selections {
			id := fmt.Sprintf("I%d", j)
			if rng.Intn(4) == 0 {
				selections[j] = selection(id, "")
				unlimited = true
				continue
			}
			limit := decimal.New(1+rng.Int63n(50000), -2)
			limitSum = limitSum.Add(limit)
			selections[j] = selection(id, limit.String())
		}

		allocations, err := service.Allocate(total, selections)
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}

		// Sum equals min(total, sum(limits)).
		planned, err := service.PlanTotal("CAD", allocations)
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}
		want := total.Amount()
		if !unlimited && limitSum.LessThan(want) {
			want = limitSum
		}
		if !planned.Amount().Equal(want) {
			t.Errorf("case %d: allocated %s, expected %s", i, planned.Amount(), want)
		}

		// Order preserved, no zero entries, limits respected.
		next := 0
		for _, a := range allocations {
			if !a.Amount.IsPositive() {
				t.Errorf("case %d: non-positive allocation %s for %s", i, a.Amount, a.InstrumentID)
			}
			idx := -1
			for k := next; k < len(selections); k++ {
				if selections[k].InstrumentID == a.InstrumentID {
					idx = k
					break
				}
			}
			if idx < 0 {
				t.Fatalf("case %d: allocation %s out of selection order", i, a.InstrumentID)
			}
			next = idx + 1

			sel := selections[idx]
			if !sel.Unlimited() {
				if cmp, _ := a.Amount.Cmp(sel.Limit); cmp > 0 {
					t.Errorf("case %d: %s allocated %s over limit %s", i, a.InstrumentID, a.Amount, sel.Limit)
				}
			}
		}
	}
}
