package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"payments/internal/domain"
)

// StatementLine is the settlement position of one hold of the placed reservation.
type StatementLine struct {
	EventID      string
	InstrumentID string
	Reserved     domain.Money
	Charged      domain.Money
	Refunded     domain.Money
	Chargeable   domain.Money // Reserved - Charged
}

// Statement describes a reference id's ledger for the owner of the reference.
type Statement struct {
	ReferenceID string
	Placed      bool
	Attempts    int // Reservation sagas recorded, including failed ones
	Lines       []StatementLine
	Summary     LedgerSummary
	GeneratedAt time.Time
}

// BuildStatement folds a ledger into per-hold lines and its reconciled totals.
// Lines only cover the placed reservation; holds from failed attempts were voided.
func BuildStatement(referenceID string, events []*domain.PaymentEvent, now time.Time) (*Statement, error) {
	summary, err := Reconcile("", events)
	if err != nil {
		return nil, err
	}

	ledger := domain.NewLedger(events)
	statement := &Statement{
		ReferenceID: referenceID,
		Attempts:    len(ledger.ReservationAttempts()),
		Summary:     summary,
		GeneratedAt: now,
	}

	placed, ok := ledger.PlacedReservation()
	if !ok {
		return statement, nil
	}
	statement.Placed = true

	for _, hold := range placed {
		line, err := statementLine(ledger, hold)
		if err != nil {
			return nil, err
		}
		statement.Lines = append(statement.Lines, line)
	}

	return statement, nil
}

func statementLine(ledger *domain.Ledger, hold *domain.PaymentEvent) (StatementLine, error) {
	charged, err := ledger.Settled(hold.ID, domain.EventTypeCharge)
	if err != nil {
		return StatementLine{}, err
	}

	refunded := domain.Zero(hold.Amount.Currency())
	for _, charge := range ledger.Children(hold.ID) {
		if charge.Type != domain.EventTypeCharge || !charge.Approved() {
			continue
		}
		credited, err := ledger.Settled(charge.ID, domain.EventTypeCredit)
		if err != nil {
			return StatementLine{}, err
		}
		if refunded, err = refunded.Add(credited); err != nil {
			return StatementLine{}, err
		}
	}

	chargeable, err := hold.Amount.Sub(charged)
	if err != nil {
		return StatementLine{}, err
	}

	return StatementLine{
		EventID:      hold.ID,
		InstrumentID: hold.InstrumentID,
		Reserved:     hold.Amount,
		Charged:      charged,
		Refunded:     refunded,
		Chargeable:   chargeable,
	}, nil
}

// GetStatement builds the statement of a reference id from its current ledger.
func (s *PaymentService) GetStatement(ctx context.Context, referenceID string) (*Statement, error) {
	events, err := s.GetLedger(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	return BuildStatement(referenceID, events, s.now())
}

// FormatStatement formats the statement as plain text (for email/print).
func FormatStatement(st *Statement) string {
	var b strings.Builder

	b.WriteString("=====================================\n")
	b.WriteString("        PAYMENT STATEMENT\n")
	b.WriteString("=====================================\n")
	fmt.Fprintf(&b, "Reference: %s\n", st.ReferenceID)
	fmt.Fprintf(&b, "Date: %s\n", st.GeneratedAt.Format("Jan 02, 2006 3:04 PM"))
	fmt.Fprintf(&b, "Reservation attempts: %d\n", st.Attempts)

	b.WriteString("\nHOLDS\n")
	b.WriteString("-------------------------------------\n")
	if !st.Placed {
		b.WriteString("No reservation placed\n")
	}
	for _, line := range st.Lines {
		fmt.Fprintf(&b, "%s\n", line.InstrumentID)
		fmt.Fprintf(&b, "  Reserved:   %s\n", formatAmount(line.Reserved))
		fmt.Fprintf(&b, "  Charged:    %s\n", formatAmount(line.Charged))
		fmt.Fprintf(&b, "  Refunded:   %s\n", formatAmount(line.Refunded))
		fmt.Fprintf(&b, "  Chargeable: %s\n", formatAmount(line.Chargeable))
	}

	b.WriteString("\nTOTALS\n")
	b.WriteString("-------------------------------------\n")
	fmt.Fprintf(&b, "Charged:  %s\n", formatAmount(st.Summary.AmountCharged))
	fmt.Fprintf(&b, "Refunded: %s\n", formatAmount(st.Summary.AmountRefunded))
	b.WriteString("-------------------------------------\n")
	fmt.Fprintf(&b, "NET:      %s\n", formatAmount(st.Summary.Net))
	b.WriteString("=====================================\n")

	return b.String()
}

func formatAmount(m domain.Money) string {
	if m.Currency() == "" {
		return m.Amount().StringFixed(2)
	}
	return m.Amount().StringFixed(2) + " " + m.Currency()
}
