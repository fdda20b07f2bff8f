package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"payments/internal/domain"
	"payments/internal/redis"
	"payments/internal/repository"
)

const ledgerLockTTL = 2 * time.Minute // Must outlive a saga including compensation

// PaymentService is the entry point for callers. It serializes work per reference id,
// refuses to place a second reservation for the same reference id and settles
// charges and credits against the ledger.
type PaymentService struct {
	eventRepo      repository.EventRepository
	instrumentRepo repository.InstrumentRepository
	saga           *SagaCoordinator
	providers      *ProviderRegistry
	lockStore      redis.LockStoreInterface  // Optional
	cacheStore     redis.CacheStoreInterface // Optional
	notifications  *NotificationService
	logger         *zap.Logger

	// Used when no lock store is configured.
	localMu    sync.Mutex
	localLocks map[string]struct{}

	now func() time.Time
}

// NewPaymentService creates a new PaymentService. lockStore, cacheStore and
// notifications may be nil.
func NewPaymentService(
	eventRepo repository.EventRepository,
	instrumentRepo repository.InstrumentRepository,
	saga *SagaCoordinator,
	providers *ProviderRegistry,
	lockStore redis.LockStoreInterface,
	cacheStore redis.CacheStoreInterface,
	notifications *NotificationService,
	logger *zap.Logger,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifications == nil {
		notifications = NewNotificationService(nil, logger)
	}
	return &PaymentService{
		eventRepo:      eventRepo,
		instrumentRepo: instrumentRepo,
		saga:           saga,
		providers:      providers,
		lockStore:      lockStore,
		cacheStore:     cacheStore,
		notifications:  notifications,
		logger:         logger,
		localLocks:     make(map[string]struct{}),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// ReserveRequest contains the parameters for reserving a payment.
type ReserveRequest struct {
	ReferenceID string
	Amount      domain.Money
	Selections  []domain.InstrumentSelection
}

// Reserve runs the reservation saga for a reference id that has no placed reservation.
func (s *PaymentService) Reserve(ctx context.Context, req ReserveRequest) (*ReservationResult, error) {
	if req.ReferenceID == "" {
		return nil, ErrInvalidReferenceID
	}

	release, err := s.lock(ctx, req.ReferenceID)
	if err != nil {
		return nil, err
	}
	defer release()

	events, err := s.eventRepo.FindByReferenceID(ctx, req.ReferenceID)
	if err != nil {
		return nil, err
	}
	if _, placed := domain.NewLedger(events).PlacedReservation(); placed {
		return nil, fmt.Errorf("%w: %s", ErrReservationExists, req.ReferenceID)
	}

	result, err := s.saga.Reserve(ctx, req.Amount, req.Selections, req.ReferenceID)
	if result != nil {
		s.invalidate(ctx, req.ReferenceID)
		if nerr := s.notifications.NotifyReservation(ctx, result); nerr != nil {
			s.logger.Warn("failed to send reservation notification",
				zap.String("reference_id", req.ReferenceID),
				zap.Error(nerr),
			)
		}
	}
	return result, err
}

// SettleRequest contains the parameters for a charge or a credit.
type SettleRequest struct {
	ParentEventID string
	Amount        domain.Money
}

// Charge captures part of an approved reservation. A declined or failed provider call
// is recorded and returned as an event, not as an error.
func (s *PaymentService) Charge(ctx context.Context, req SettleRequest) (*domain.PaymentEvent, error) {
	return s.settle(ctx, req, domain.EventTypeCharge)
}

// Credit refunds part of an approved charge.
func (s *PaymentService) Credit(ctx context.Context, req SettleRequest) (*domain.PaymentEvent, error) {
	return s.settle(ctx, req, domain.EventTypeCredit)
}

func (s *PaymentService) settle(ctx context.Context, req SettleRequest, childType domain.EventType) (*domain.PaymentEvent, error) {
	if req.ParentEventID == "" {
		return nil, ErrInvalidEventID
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPaymentAmount, req.Amount)
	}

	parent, err := s.eventRepo.GetByID(ctx, req.ParentEventID)
	if err != nil {
		return nil, err
	}

	release, err := s.lock(ctx, parent.ReferenceID)
	if err != nil {
		return nil, err
	}
	defer release()

	events, err := s.eventRepo.FindByReferenceID(ctx, parent.ReferenceID)
	if err != nil {
		return nil, err
	}
	ledger := domain.NewLedger(events)

	if err := validateParent(ledger, parent, childType); err != nil {
		return nil, err
	}

	remaining, err := ledger.Remaining(parent.ID, childType)
	if err != nil {
		return nil, err
	}
	cmp, err := req.Amount.Cmp(remaining)
	if err != nil {
		return nil, err
	}
	if cmp > 0 {
		return nil, fmt.Errorf("%w: %s requested, %s left on %s", ErrAmountExceedsRemaining, req.Amount, remaining, parent.ID)
	}

	instrument, err := s.instrumentRepo.GetByID(ctx, parent.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", parent.InstrumentID, err)
	}
	gateway, err := s.providers.Get(instrument.ProviderID)
	if err != nil {
		return nil, err
	}

	provReq := ProviderRequest{
		Instrument:  instrument,
		Amount:      req.Amount,
		ReferenceID: parent.ReferenceID,
		ProviderRef: parent.ProviderRef,
	}

	segment := newrelic.FromContext(ctx).StartSegment("Provider/" + instrument.ProviderID + "/" + string(childType))
	res, callErr := callWithTimeout(ctx, s.saga.cfg.ProviderTimeout, func(callCtx context.Context) (ProviderResult, error) {
		if childType == domain.EventTypeCharge {
			return gateway.Charge(callCtx, provReq)
		}
		return gateway.Credit(callCtx, provReq)
	})
	segment.End()

	event := &domain.PaymentEvent{
		ID:           uuid.New().String(),
		ParentID:     parent.ID,
		Type:         childType,
		Status:       statusFor(res, callErr),
		Amount:       req.Amount,
		InstrumentID: parent.InstrumentID,
		ReferenceID:  parent.ReferenceID,
		ProviderRef:  res.ProviderRef,
		Message:      messageFor(res, callErr),
		CreatedAt:    s.now(),
	}

	// The provider has acted; record it even if the caller has gone away.
	if err := s.eventRepo.Append(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error("failed to append settlement event",
			zap.String("reference_id", event.ReferenceID),
			zap.String("event_id", event.ID),
			zap.String("type", string(childType)),
			zap.String("status", string(event.Status)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: event %s: %w", ErrLedgerAppend, event.ID, err)
	}

	s.invalidate(ctx, event.ReferenceID)
	s.logger.Info("settlement recorded",
		zap.String("reference_id", event.ReferenceID),
		zap.String("event_id", event.ID),
		zap.String("type", string(childType)),
		zap.String("status", string(event.Status)),
		zap.String("amount", event.Amount.String()),
	)
	if nerr := s.notifications.NotifySettlement(ctx, event); nerr != nil {
		s.logger.Warn("failed to send settlement notification", zap.String("event_id", event.ID), zap.Error(nerr))
	}

	return event, nil
}

// validateParent checks that parent may be settled by a child of childType.
// Charges settle reserves of the placed reservation; credits settle charges.
func validateParent(ledger *domain.Ledger, parent *domain.PaymentEvent, childType domain.EventType) error {
	if !parent.Approved() {
		return fmt.Errorf("%w: %s is %s", ErrInvalidParentEvent, parent.ID, parent.Status)
	}

	switch childType {
	case domain.EventTypeCharge:
		if parent.Type != domain.EventTypeReserve {
			return fmt.Errorf("%w: charges settle reservations, %s is a %s", ErrInvalidParentEvent, parent.ID, parent.Type)
		}
		placed, ok := ledger.PlacedReservation()
		if !ok {
			return fmt.Errorf("%w: reference %s has no placed reservation", ErrInvalidParentEvent, parent.ReferenceID)
		}
		for _, e := range placed {
			if e.ID == parent.ID {
				return nil
			}
		}
		return fmt.Errorf("%w: %s belongs to a compensated reservation", ErrInvalidParentEvent, parent.ID)

	case domain.EventTypeCredit:
		if parent.Type != domain.EventTypeCharge {
			return fmt.Errorf("%w: credits settle charges, %s is a %s", ErrInvalidParentEvent, parent.ID, parent.Type)
		}
		return nil
	}

	return fmt.Errorf("%w: cannot settle with %s", ErrInvalidParentEvent, childType)
}

// GetLedger returns every event recorded for a reference id, oldest first.
func (s *PaymentService) GetLedger(ctx context.Context, referenceID string) ([]*domain.PaymentEvent, error) {
	if referenceID == "" {
		return nil, ErrInvalidReferenceID
	}
	return s.eventRepo.FindByReferenceID(ctx, referenceID)
}

// GetEvent retrieves a single ledger event.
func (s *PaymentService) GetEvent(ctx context.Context, eventID string) (*domain.PaymentEvent, error) {
	if eventID == "" {
		return nil, ErrInvalidEventID
	}
	return s.eventRepo.GetByID(ctx, eventID)
}

// GetSummary reconciles the ledger of a reference id, reading through the summary cache.
// An empty currency uses the ledger's own.
func (s *PaymentService) GetSummary(ctx context.Context, referenceID, currency string) (LedgerSummary, error) {
	if referenceID == "" {
		return LedgerSummary{}, ErrInvalidReferenceID
	}

	if s.cacheStore != nil && currency != "" {
		cached, err := s.cacheStore.GetSummary(ctx, referenceID, currency)
		if err != nil {
			s.logger.Warn("summary cache read failed", zap.String("reference_id", referenceID), zap.Error(err))
		} else if cached != nil {
			if summary, err := summaryFromCache(cached); err == nil {
				return summary, nil
			}
		}
	}

	events, err := s.eventRepo.FindByReferenceID(ctx, referenceID)
	if err != nil {
		return LedgerSummary{}, err
	}

	summary, err := Reconcile(currency, events)
	if err != nil {
		return LedgerSummary{}, err
	}

	if s.cacheStore != nil && summary.Currency != "" {
		if err := s.cacheStore.SetSummary(ctx, summaryToCache(referenceID, summary)); err != nil {
			s.logger.Warn("summary cache write failed", zap.String("reference_id", referenceID), zap.Error(err))
		}
	}

	return summary, nil
}

func summaryToCache(referenceID string, summary LedgerSummary) *redis.CachedSummary {
	return &redis.CachedSummary{
		ReferenceID:    referenceID,
		Currency:       summary.Currency,
		AmountCharged:  summary.AmountCharged.Amount().String(),
		AmountRefunded: summary.AmountRefunded.Amount().String(),
		Net:            summary.Net.Amount().String(),
		EventCount:     summary.EventCount,
	}
}

func summaryFromCache(cached *redis.CachedSummary) (LedgerSummary, error) {
	charged, err := domain.ParseMoney(cached.AmountCharged, cached.Currency)
	if err != nil {
		return LedgerSummary{}, err
	}
	refunded, err := domain.ParseMoney(cached.AmountRefunded, cached.Currency)
	if err != nil {
		return LedgerSummary{}, err
	}
	net, err := domain.ParseMoney(cached.Net, cached.Currency)
	if err != nil {
		return LedgerSummary{}, err
	}
	return LedgerSummary{
		Currency:       charged.Currency(),
		AmountCharged:  charged,
		AmountRefunded: refunded,
		Net:            net,
		EventCount:     cached.EventCount,
	}, nil
}

// lock takes the ledger lock of a reference id. The returned func releases it.
func (s *PaymentService) lock(ctx context.Context, referenceID string) (func(), error) {
	if s.lockStore == nil {
		s.localMu.Lock()
		defer s.localMu.Unlock()
		if _, held := s.localLocks[referenceID]; held {
			return nil, fmt.Errorf("%w: %s", ErrLedgerLocked, referenceID)
		}
		s.localLocks[referenceID] = struct{}{}
		return func() {
			s.localMu.Lock()
			delete(s.localLocks, referenceID)
			s.localMu.Unlock()
		}, nil
	}

	token, locked, err := s.lockStore.AcquireLedgerLock(ctx, referenceID, ledgerLockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLedgerLocked, referenceID)
	}
	return func() {
		if err := s.lockStore.ReleaseLedgerLock(context.WithoutCancel(ctx), referenceID, token); err != nil {
			s.logger.Warn("failed to release ledger lock", zap.String("reference_id", referenceID), zap.Error(err))
		}
	}, nil
}

func (s *PaymentService) invalidate(ctx context.Context, referenceID string) {
	if s.cacheStore == nil {
		return
	}
	if err := s.cacheStore.InvalidateLedger(context.WithoutCancel(ctx), referenceID); err != nil {
		s.logger.Warn("failed to invalidate summary cache", zap.String("reference_id", referenceID), zap.Error(err))
	}
}
