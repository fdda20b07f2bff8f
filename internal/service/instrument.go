package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"payments/internal/domain"
	"payments/internal/repository"
)

// InstrumentService handles payment instrument operations.
type InstrumentService struct {
	instrumentRepo repository.InstrumentRepository
	providers      *ProviderRegistry
}

// NewInstrumentService creates a new InstrumentService.
func NewInstrumentService(instrumentRepo repository.InstrumentRepository, providers *ProviderRegistry) *InstrumentService {
	return &InstrumentService{
		instrumentRepo: instrumentRepo,
		providers:      providers,
	}
}

// RegisterInstrumentRequest contains the parameters for registering an instrument.
type RegisterInstrumentRequest struct {
	ProviderID string
	Kind       domain.InstrumentKind
	Label      string
}

// Register stores a new instrument served by a registered provider.
func (s *InstrumentService) Register(ctx context.Context, req RegisterInstrumentRequest) (*domain.Instrument, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInstrumentKind, req.Kind)
	}
	if !s.providers.Has(req.ProviderID) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, req.ProviderID)
	}

	instrument := &domain.Instrument{
		ID:         uuid.New().String(),
		ProviderID: req.ProviderID,
		Kind:       req.Kind,
		Label:      req.Label,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.instrumentRepo.Create(ctx, instrument); err != nil {
		return nil, err
	}

	return instrument, nil
}

// Get retrieves an instrument by ID.
func (s *InstrumentService) Get(ctx context.Context, instrumentID string) (*domain.Instrument, error) {
	if instrumentID == "" {
		return nil, ErrInvalidInstrumentID
	}

	return s.instrumentRepo.GetByID(ctx, instrumentID)
}

// List retrieves all instruments.
func (s *InstrumentService) List(ctx context.Context) ([]*domain.Instrument, error) {
	return s.instrumentRepo.GetAll(ctx)
}
