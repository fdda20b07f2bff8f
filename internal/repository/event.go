package repository

import (
	"context"

	"payments/internal/domain"
)

// EventRepository defines the persistence operations for ledger events.
// The ledger is append-only: there are no update or delete operations.
type EventRepository interface {
	// Append persists a new event.
	Append(ctx context.Context, event *domain.PaymentEvent) error

	// GetByID retrieves an event by ID.
	GetByID(ctx context.Context, id string) (*domain.PaymentEvent, error)

	// FindByReferenceID retrieves all events sharing a reference id, oldest first.
	// Returns an empty slice if none exist.
	FindByReferenceID(ctx context.Context, referenceID string) ([]*domain.PaymentEvent, error)
}
