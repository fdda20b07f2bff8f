package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"payments/internal/domain"
	"payments/internal/repository"
)

// SagaConfig holds the timing knobs of the reservation saga.
type SagaConfig struct {
	ProviderTimeout         time.Duration // Per provider call; exceeding it records ERROR
	CompensationTimeout     time.Duration // Whole compensation phase
	CompensationConcurrency int           // Voids issued in parallel
	VoidAttempts            int
	VoidBackoff             time.Duration // Base delay, doubled per retry
}

// DefaultSagaConfig returns the settings used when nothing is configured.
func DefaultSagaConfig() SagaConfig {
	return SagaConfig{
		ProviderTimeout:         5 * time.Second,
		CompensationTimeout:     30 * time.Second,
		CompensationConcurrency: 4,
		VoidAttempts:            3,
		VoidBackoff:             100 * time.Millisecond,
	}
}

// Compensation records one void issued while unwinding a failed saga.
type Compensation struct {
	EventID      string // Empty when voiding a step whose outcome is unknown
	InstrumentID string
	Amount       domain.Money
	Attempts     int
	Err          error
}

// Succeeded reports whether the provider confirmed the void.
func (c Compensation) Succeeded() bool {
	return c.Err == nil
}

// ReservationResult is the outcome of one saga invocation.
type ReservationResult struct {
	ReferenceID string
	Total       domain.Money

	// Events holds one RESERVE event per step attempted, in attempt order.
	Events []*domain.PaymentEvent

	// Success is true only if every step was approved. A failed saga has been
	// compensated and must be treated as not placed.
	Success bool

	Compensations []Compensation

	// Warnings carries ErrCompensationFailure for every void that could not be confirmed.
	Warnings []error
}

// ApprovedTotal sums the approved RESERVE events.
func (r *ReservationResult) ApprovedTotal() (domain.Money, error) {
	sum := domain.Zero(r.Total.Currency())
	for _, e := range r.Events {
		if e.Type != domain.EventTypeReserve || !e.Approved() {
			continue
		}
		next, err := sum.Add(e.Amount)
		if err != nil {
			return domain.Money{}, err
		}
		sum = next
	}
	return sum, nil
}

// SagaCoordinator reserves an amount across several instruments, one provider call per
// allocation, and voids earlier holds when a later step fails.
type SagaCoordinator struct {
	instrumentRepo repository.InstrumentRepository
	eventRepo      repository.EventRepository
	providers      *ProviderRegistry
	cfg            SagaConfig
	logger         *zap.Logger
	now            func() time.Time
}

// NewSagaCoordinator creates a new SagaCoordinator.
func NewSagaCoordinator(
	instrumentRepo repository.InstrumentRepository,
	eventRepo repository.EventRepository,
	providers *ProviderRegistry,
	cfg SagaConfig,
	logger *zap.Logger,
) *SagaCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SagaCoordinator{
		instrumentRepo: instrumentRepo,
		eventRepo:      eventRepo,
		providers:      providers,
		cfg:            cfg,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// sagaStep is one allocation with its resolved instrument and gateway.
type sagaStep struct {
	allocation domain.Allocation
	instrument *domain.Instrument
	gateway    ProviderGateway
}

// compensationTarget is a step that may hold funds at the provider.
type compensationTarget struct {
	step  sagaStep
	event *domain.PaymentEvent
}

// Reserve allocates total across selections and reserves each allocation in order.
//
// Validation, allocation and instrument resolution happen before any provider call:
// errors at that stage, including ErrInsufficientInstrumentCapacity, are returned
// with a nil result. Once provider calls start, the result is always returned; a
// non-nil error then means the ledger could not be written.
func (c *SagaCoordinator) Reserve(
	ctx context.Context,
	total domain.Money,
	selections []domain.InstrumentSelection,
	referenceID string,
) (*ReservationResult, error) {
	steps, err := c.plan(ctx, total, selections, referenceID)
	if err != nil {
		return nil, err
	}

	log := c.logger.With(zap.String("reference_id", referenceID))
	ledgerCtx := context.WithoutCancel(ctx)

	result := &ReservationResult{
		ReferenceID: referenceID,
		Total:       total,
		Events:      make([]*domain.PaymentEvent, 0, len(steps)),
	}

	var committed []compensationTarget

	for i, step := range steps {
		res, callErr := c.reserveStep(ctx, step, referenceID)

		event := &domain.PaymentEvent{
			ID:                 uuid.New().String(),
			Type:               domain.EventTypeReserve,
			Status:             statusFor(res, callErr),
			Amount:             step.allocation.Amount,
			InstrumentID:       step.instrument.ID,
			OriginalInstrument: i == 0,
			PlannedSteps:       len(steps),
			ReferenceID:        referenceID,
			ProviderRef:        res.ProviderRef,
			Message:            messageFor(res, callErr),
			CreatedAt:          c.now(),
		}
		result.Events = append(result.Events, event)

		// A timed-out call may still have placed a hold; void it by reference. A call
		// refused by the breaker never reached the provider.
		unknown := callErr != nil && !errors.Is(callErr, ErrProviderUnavailable)

		if appendErr := c.eventRepo.Append(ledgerCtx, event); appendErr != nil {
			if event.Approved() || unknown {
				committed = append(committed, compensationTarget{step: step, event: event})
			}
			log.Error("failed to append reservation event",
				zap.String("event_id", event.ID),
				zap.Error(appendErr),
			)
			c.compensate(ctx, result, committed)
			return result, fmt.Errorf("%w: event %s: %w", ErrLedgerAppend, event.ID, appendErr)
		}

		if !event.Approved() {
			log.Info("reservation step failed, compensating",
				zap.String("instrument_id", step.instrument.ID),
				zap.String("status", string(event.Status)),
				zap.String("message", event.Message),
				zap.Int("approved_steps", len(committed)),
			)
			if unknown {
				committed = append(committed, compensationTarget{step: step})
			}
			c.compensate(ctx, result, committed)
			return result, nil
		}

		committed = append(committed, compensationTarget{step: step, event: event})
	}

	result.Success = true
	log.Info("reservation placed",
		zap.String("total", total.String()),
		zap.Int("instruments", len(steps)),
	)

	return result, nil
}

// plan validates the request, allocates it and resolves every instrument and gateway.
func (c *SagaCoordinator) plan(
	ctx context.Context,
	total domain.Money,
	selections []domain.InstrumentSelection,
	referenceID string,
) ([]sagaStep, error) {
	if referenceID == "" {
		return nil, ErrInvalidReferenceID
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPaymentAmount, total)
	}
	if len(selections) == 0 {
		return nil, ErrNoSelections
	}

	seen := make(map[string]struct{}, len(selections))
	for _, sel := range selections {
		if sel.InstrumentID == "" {
			return nil, ErrInvalidInstrumentID
		}
		if _, dup := seen[sel.InstrumentID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSelection, sel.InstrumentID)
		}
		seen[sel.InstrumentID] = struct{}{}
	}

	allocations, err := Allocate(total, selections)
	if err != nil {
		return nil, err
	}

	planned, err := PlanTotal(total.Currency(), allocations)
	if err != nil {
		return nil, err
	}
	if cmp, _ := planned.Cmp(total); cmp < 0 {
		return nil, fmt.Errorf("%w: limits cover %s of %s", ErrInsufficientInstrumentCapacity, planned, total)
	}

	steps := make([]sagaStep, 0, len(allocations))
	for _, a := range allocations {
		instrument, err := c.instrumentRepo.GetByID(ctx, a.InstrumentID)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", a.InstrumentID, err)
		}
		gateway, err := c.providers.Get(instrument.ProviderID)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", a.InstrumentID, err)
		}
		steps = append(steps, sagaStep{allocation: a, instrument: instrument, gateway: gateway})
	}

	return steps, nil
}

func (c *SagaCoordinator) reserveStep(ctx context.Context, step sagaStep, referenceID string) (ProviderResult, error) {
	defer newrelic.FromContext(ctx).StartSegment("Provider/" + step.instrument.ProviderID + "/Reserve").End()

	return callWithTimeout(ctx, c.cfg.ProviderTimeout, func(callCtx context.Context) (ProviderResult, error) {
		return step.gateway.Reserve(callCtx, ProviderRequest{
			Instrument:  step.instrument,
			Amount:      step.allocation.Amount,
			ReferenceID: referenceID,
		})
	})
}

// compensate voids targets newest first. Voids run concurrently up to the configured
// limit and are detached from the caller's cancellation.
func (c *SagaCoordinator) compensate(ctx context.Context, result *ReservationResult, targets []compensationTarget) {
	if len(targets) == 0 {
		return
	}

	compCtx := context.WithoutCancel(ctx)
	if c.cfg.CompensationTimeout > 0 {
		var cancel context.CancelFunc
		compCtx, cancel = context.WithTimeout(compCtx, c.cfg.CompensationTimeout)
		defer cancel()
	}

	limit := c.cfg.CompensationConcurrency
	if limit < 1 {
		limit = 1
	}

	compensations := make([]Compensation, len(targets))
	var g errgroup.Group
	g.SetLimit(limit)

	for i := len(targets) - 1; i >= 0; i-- {
		slot := len(targets) - 1 - i
		target := targets[i]
		g.Go(func() error {
			compensations[slot] = c.void(compCtx, target, result.ReferenceID)
			return nil
		})
	}
	_ = g.Wait()

	for _, comp := range compensations {
		if comp.Succeeded() {
			continue
		}
		c.logger.Warn("compensation failure",
			zap.String("reference_id", result.ReferenceID),
			zap.String("event_id", comp.EventID),
			zap.String("instrument_id", comp.InstrumentID),
			zap.String("amount", comp.Amount.String()),
			zap.Int("attempts", comp.Attempts),
			zap.Error(comp.Err),
		)
		result.Warnings = append(result.Warnings, fmt.Errorf("%w: instrument %s amount %s: %w",
			ErrCompensationFailure, comp.InstrumentID, comp.Amount, comp.Err))
	}

	result.Compensations = compensations
}

// void releases one hold, retrying with exponential backoff.
func (c *SagaCoordinator) void(ctx context.Context, target compensationTarget, referenceID string) Compensation {
	step := target.step
	comp := Compensation{
		InstrumentID: step.instrument.ID,
		Amount:       step.allocation.Amount,
	}

	req := ProviderRequest{
		Instrument:  step.instrument,
		Amount:      step.allocation.Amount,
		ReferenceID: referenceID,
	}
	if target.event != nil {
		comp.EventID = target.event.ID
		req.ProviderRef = target.event.ProviderRef
	}

	attempts := c.cfg.VoidAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(voidBackOff(c.cfg.VoidBackoff), uint64(attempts-1)), ctx)

	err := backoff.Retry(func() error {
		comp.Attempts++
		res, err := callWithTimeout(ctx, c.cfg.ProviderTimeout, func(callCtx context.Context) (ProviderResult, error) {
			return step.gateway.Void(callCtx, req)
		})
		if err == nil && res.Outcome != OutcomeVoided {
			err = fmt.Errorf("provider returned %s: %s", res.Outcome, res.Message)
		}
		comp.Err = err
		return err
	}, policy)

	if err != nil && comp.Err == nil {
		comp.Err = err
	} else if err != nil && !errors.Is(comp.Err, err) {
		comp.Err = fmt.Errorf("%w (last error: %v)", err, comp.Err)
	}
	return comp
}

const maxBackoff = 5 * time.Second

// voidBackOff doubles base on every retry up to maxBackoff, without jitter.
func voidBackOff(base time.Duration) backoff.BackOff {
	if base <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
