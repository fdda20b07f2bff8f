package postgres

import (
	"context"
	"database/sql"
	"errors"

	"payments/internal/domain"
	"payments/internal/repository"
)

// InstrumentRepository is a PostgreSQL implementation of repository.InstrumentRepository.
type InstrumentRepository struct {
	q Querier
}

// NewInstrumentRepository creates a new PostgreSQL instrument repository.
func NewInstrumentRepository(db *sql.DB) *InstrumentRepository {
	return &InstrumentRepository{q: db}
}

// Create adds a new instrument.
func (r *InstrumentRepository) Create(ctx context.Context, instrument *domain.Instrument) error {
	query := `
		INSERT INTO payment_instruments (id, provider_id, kind, label, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.q.ExecContext(ctx, query,
		instrument.ID,
		instrument.ProviderID,
		instrument.Kind,
		instrument.Label,
		instrument.CreatedAt,
	)

	return translateError(err)
}

// GetByID retrieves an instrument by ID.
func (r *InstrumentRepository) GetByID(ctx context.Context, id string) (*domain.Instrument, error) {
	query := `
		SELECT id, provider_id, kind, label, created_at
		FROM payment_instruments WHERE id = $1
	`

	var instrument domain.Instrument
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&instrument.ID,
		&instrument.ProviderID,
		&instrument.Kind,
		&instrument.Label,
		&instrument.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &instrument, nil
}

// GetAll retrieves all instruments.
func (r *InstrumentRepository) GetAll(ctx context.Context) ([]*domain.Instrument, error) {
	query := `
		SELECT id, provider_id, kind, label, created_at
		FROM payment_instruments ORDER BY created_at DESC LIMIT 100
	`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instruments []*domain.Instrument
	for rows.Next() {
		var instrument domain.Instrument
		if err := rows.Scan(
			&instrument.ID,
			&instrument.ProviderID,
			&instrument.Kind,
			&instrument.Label,
			&instrument.CreatedAt,
		); err != nil {
			return nil, err
		}
		instruments = append(instruments, &instrument)
	}

	return instruments, rows.Err()
}
