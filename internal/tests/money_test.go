package tests

import (
	"encoding/json"
	"errors"
	"testing"

	"payments/internal/domain"
)

func TestParseMoney(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		amount   string
		currency string
		want     string
		wantErr  error
	}{
		{"valid", "12.50", "CAD", "12.5 CAD", nil},
		{"lowercase currency", "3", "usd", "3 USD", nil},
		{"surrounding spaces", " 7.25 ", " EUR ", "7.25 EUR", nil},
		{"unknown currency", "1", "XYZ1", "", domain.ErrInvalidCurrency},
		{"empty currency", "1", "", "", domain.ErrInvalidCurrency},
		{"bad amount", "ten", "CAD", "", domain.ErrInvalidAmount},
		{"empty amount", "", "CAD", "", domain.ErrInvalidAmount},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := domain.ParseMoney(tc.amount, tc.currency)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.String() != tc.want {
				t.Errorf("expected %s, got %s", tc.want, m.String())
			}
		})
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	t.Parallel()

	sum, err := cad("10.10").Add(cad("0.20"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sum.Equal(cad("10.3")) {
		t.Errorf("expected 10.3 CAD, got %s", sum)
	}

	diff, err := cad("1").Sub(cad("0.01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !diff.Equal(cad("0.99")) {
		t.Errorf("expected 0.99 CAD, got %s", diff)
	}

	if cmp, _ := cad("5").Cmp(cad("5.00")); cmp != 0 {
		t.Errorf("expected 5 and 5.00 to compare equal, got %d", cmp)
	}

	low, err := cad("3").Min(cad("2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !low.Equal(cad("2")) {
		t.Errorf("expected min 2 CAD, got %s", low)
	}
}

func TestMoney_CurrencyMismatch(t *testing.T) {
	t.Parallel()

	usd := money("1", "USD")

	if _, err := cad("1").Add(usd); !errors.Is(err, domain.ErrInvalidCurrency) {
		t.Errorf("Add: expected ErrInvalidCurrency, got %v", err)
	}
	if _, err := cad("1").Sub(usd); !errors.Is(err, domain.ErrInvalidCurrency) {
		t.Errorf("Sub: expected ErrInvalidCurrency, got %v", err)
	}
	if _, err := cad("1").Cmp(usd); !errors.Is(err, domain.ErrInvalidCurrency) {
		t.Errorf("Cmp: expected ErrInvalidCurrency, got %v", err)
	}
	if cad("1").Equal(usd) {
		t.Error("values in different currencies must not be equal")
	}
}

func TestMoney_JSONKeepsDecimalPrecision(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(cad("0.10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"amount":"0.1","currency":"CAD"}` {
		t.Errorf("unexpected encoding: %s", data)
	}

	var decoded domain.Money
	if err := json.Unmarshal([]byte(`{"amount":"19.99","currency":"cad"}`), &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decoded.Equal(cad("19.99")) {
		t.Errorf("expected 19.99 CAD, got %s", decoded)
	}
}
