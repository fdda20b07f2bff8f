package repository

import (
	"context"

	"payments/internal/domain"
)

// InstrumentRepository defines the persistence operations for payment instruments.
type InstrumentRepository interface {
	// Create adds a new instrument.
	Create(ctx context.Context, instrument *domain.Instrument) error

	// GetByID retrieves an instrument by ID.
	GetByID(ctx context.Context, id string) (*domain.Instrument, error)

	// GetAll retrieves all instruments.
	GetAll(ctx context.Context) ([]*domain.Instrument, error)
}
