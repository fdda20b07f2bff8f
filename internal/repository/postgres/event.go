package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"payments/internal/domain"
	"payments/internal/repository"
)

const eventColumns = `id, parent_id, reference_id, type, status, amount, currency, instrument_id, original_instrument, planned_steps, provider_ref, message, created_at`

// EventRepository is a PostgreSQL implementation of repository.EventRepository.
type EventRepository struct {
	q Querier
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{q: db}
}

// Append persists a new event.
func (r *EventRepository) Append(ctx context.Context, event *domain.PaymentEvent) error {
	query := `
		INSERT INTO payment_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	var parentID sql.NullString
	if event.ParentID != "" {
		parentID = sql.NullString{String: event.ParentID, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		event.ID,
		parentID,
		event.ReferenceID,
		event.Type,
		event.Status,
		event.Amount.Amount(),
		event.Amount.Currency(),
		event.InstrumentID,
		event.OriginalInstrument,
		event.PlannedSteps,
		event.ProviderRef,
		event.Message,
		event.CreatedAt,
	)

	return translateError(err)
}

// GetByID retrieves an event by ID.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*domain.PaymentEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM payment_events WHERE id = $1`

	event, err := scanEvent(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return event, nil
}

// FindByReferenceID retrieves all events for a reference id, oldest first.
func (r *EventRepository) FindByReferenceID(ctx context.Context, referenceID string) ([]*domain.PaymentEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM payment_events WHERE reference_id = $1
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := r.q.QueryContext(ctx, query, referenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*domain.PaymentEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.PaymentEvent, error) {
	var (
		event    domain.PaymentEvent
		parentID sql.NullString
		amount   decimal.Decimal
		currency string
	)

	err := row.Scan(
		&event.ID,
		&parentID,
		&event.ReferenceID,
		&event.Type,
		&event.Status,
		&amount,
		&currency,
		&event.InstrumentID,
		&event.OriginalInstrument,
		&event.PlannedSteps,
		&event.ProviderRef,
		&event.Message,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		event.ParentID = parentID.String
	}
	event.Amount = domain.NewMoney(amount, currency)

	return &event, nil
}
