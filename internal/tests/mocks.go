package tests

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"payments/internal/domain"
	"payments/internal/redis"
	"payments/internal/repository"
	"payments/internal/service"
)

// ──────────────────────────────────────────────
// MOCK EVENT REPOSITORY
// ──────────────────────────────────────────────

// MockEventRepository is an in-memory, append-only EventRepository.
type MockEventRepository struct {
	mu     sync.RWMutex
	events []*domain.PaymentEvent

	// Counters for verification
	AppendCallCount int32

	// Error injection
	AppendError  error
	FailAppendAt int32 // 1-based call number that fails with AppendError; 0 fails every call
	FindError    error
}

// NewMockEventRepository creates a new mock event repository.
func NewMockEventRepository() *MockEventRepository {
	return &MockEventRepository{}
}

// AddEvent seeds an event without counting it as an append.
func (m *MockEventRepository) AddEvent(event *domain.PaymentEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *MockEventRepository) Append(ctx context.Context, event *domain.PaymentEvent) error {
	call := atomic.AddInt32(&m.AppendCallCount, 1)
	if m.AppendError != nil && (m.FailAppendAt == 0 || m.FailAppendAt == call) {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == event.ID {
			return repository.ErrDuplicateID
		}
	}
	copy := *event
	m.events = append(m.events, &copy)
	return nil
}

func (m *MockEventRepository) GetByID(ctx context.Context, id string) (*domain.PaymentEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.events {
		if e.ID == id {
			copy := *e
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockEventRepository) FindByReferenceID(ctx context.Context, referenceID string) ([]*domain.PaymentEvent, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.PaymentEvent, 0)
	for _, e := range m.events {
		if e.ReferenceID == referenceID {
			copy := *e
			result = append(result, &copy)
		}
	}
	return result, nil
}

// CountEvents returns the number of stored events (for test assertions).
func (m *MockEventRepository) CountEvents() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// ──────────────────────────────────────────────
// MOCK INSTRUMENT REPOSITORY
// ──────────────────────────────────────────────

// MockInstrumentRepository is a mock implementation of InstrumentRepository.
type MockInstrumentRepository struct {
	mu          sync.RWMutex
	instruments map[string]*domain.Instrument

	// Counters
	GetByIDCallCount int32

	// Error injection
	CreateError error
}

// NewMockInstrumentRepository creates a new mock instrument repository.
func NewMockInstrumentRepository() *MockInstrumentRepository {
	return &MockInstrumentRepository{
		instruments: make(map[string]*domain.Instrument),
	}
}

// AddInstrument adds an instrument served by providerID.
func (m *MockInstrumentRepository) AddInstrument(id, providerID string) *domain.Instrument {
	m.mu.Lock()
	defer m.mu.Unlock()
	instrument := &domain.Instrument{
		ID:         id,
		ProviderID: providerID,
		Kind:       domain.InstrumentKindCard,
		CreatedAt:  time.Now(),
	}
	m.instruments[id] = instrument
	return instrument
}

func (m *MockInstrumentRepository) Create(ctx context.Context, instrument *domain.Instrument) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.instruments[instrument.ID]; exists {
		return repository.ErrDuplicateID
	}
	m.instruments[instrument.ID] = instrument
	return nil
}

func (m *MockInstrumentRepository) GetByID(ctx context.Context, id string) (*domain.Instrument, error) {
	atomic.AddInt32(&m.GetByIDCallCount, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	instrument, ok := m.instruments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *instrument
	return &copy, nil
}

func (m *MockInstrumentRepository) GetAll(ctx context.Context) ([]*domain.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Instrument, 0, len(m.instruments))
	for _, i := range m.instruments {
		copy := *i
		result = append(result, &copy)
	}
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK GATEWAY
// ──────────────────────────────────────────────

// GatewayCall records one call made against MockGateway.
type GatewayCall struct {
	Op           string // Reserve, Void, Charge, Credit
	InstrumentID string
	Amount       domain.Money
	ReferenceID  string
	ProviderRef  string
}

// MockGateway is a scripted ProviderGateway. Reservations approve unless an
// instrument has been scripted otherwise.
type MockGateway struct {
	mu sync.Mutex

	reserveOutcomes map[string]service.Outcome
	reserveErrors   map[string]error
	reserveDelays   map[string]time.Duration
	voidErrors      map[string]error
	voidFailures    map[string]int // Failures left before a void succeeds

	ChargeOutcome service.Outcome
	CreditOutcome service.Outcome

	calls []GatewayCall
	seq   int64
}

// NewMockGateway creates a new mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		reserveOutcomes: make(map[string]service.Outcome),
		reserveErrors:   make(map[string]error),
		reserveDelays:   make(map[string]time.Duration),
		voidErrors:      make(map[string]error),
		voidFailures:    make(map[string]int),
		ChargeOutcome:   service.OutcomeApproved,
		CreditOutcome:   service.OutcomeApproved,
	}
}

// SetReserveOutcome scripts the outcome of reservations on an instrument.
func (m *MockGateway) SetReserveOutcome(instrumentID string, outcome service.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserveOutcomes[instrumentID] = outcome
}

// SetReserveError makes reservations on an instrument fail with a transport error.
func (m *MockGateway) SetReserveError(instrumentID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserveErrors[instrumentID] = err
}

// SetReserveDelay makes reservations on an instrument block for d or until cancelled.
func (m *MockGateway) SetReserveDelay(instrumentID string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserveDelays[instrumentID] = d
}

// SetVoidError makes every void on an instrument fail.
func (m *MockGateway) SetVoidError(instrumentID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voidErrors[instrumentID] = err
}

// SetVoidFailures makes the next n voids on an instrument fail.
func (m *MockGateway) SetVoidFailures(instrumentID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voidFailures[instrumentID] = n
}

func (m *MockGateway) record(op string, req service.ProviderRequest) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, GatewayCall{
		Op:           op,
		InstrumentID: req.Instrument.ID,
		Amount:       req.Amount,
		ReferenceID:  req.ReferenceID,
		ProviderRef:  req.ProviderRef,
	})
	m.seq++
	return op + "-" + req.Instrument.ID + "-" + strconv.FormatInt(m.seq, 10)
}

func (m *MockGateway) Reserve(ctx context.Context, req service.ProviderRequest) (service.ProviderResult, error) {
	ref := m.record("Reserve", req)

	m.mu.Lock()
	delay := m.reserveDelays[req.Instrument.ID]
	err := m.reserveErrors[req.Instrument.ID]
	outcome, scripted := m.reserveOutcomes[req.Instrument.ID]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return service.ProviderResult{}, ctx.Err()
		}
	}
	if err != nil {
		return service.ProviderResult{}, err
	}
	if !scripted {
		outcome = service.OutcomeApproved
	}
	if outcome != service.OutcomeApproved {
		return service.ProviderResult{Outcome: outcome, Message: "scripted " + string(outcome)}, nil
	}
	return service.ProviderResult{Outcome: outcome, ProviderRef: ref}, nil
}

func (m *MockGateway) Void(ctx context.Context, req service.ProviderRequest) (service.ProviderResult, error) {
	m.record("Void", req)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.voidErrors[req.Instrument.ID]; err != nil {
		return service.ProviderResult{}, err
	}
	if m.voidFailures[req.Instrument.ID] > 0 {
		m.voidFailures[req.Instrument.ID]--
		return service.ProviderResult{Outcome: service.OutcomeError, Message: "void rejected"}, nil
	}
	return service.ProviderResult{Outcome: service.OutcomeVoided, ProviderRef: req.ProviderRef}, nil
}

func (m *MockGateway) Charge(ctx context.Context, req service.ProviderRequest) (service.ProviderResult, error) {
	ref := m.record("Charge", req)
	return service.ProviderResult{Outcome: m.ChargeOutcome, ProviderRef: ref}, nil
}

func (m *MockGateway) Credit(ctx context.Context, req service.ProviderRequest) (service.ProviderResult, error) {
	ref := m.record("Credit", req)
	return service.ProviderResult{Outcome: m.CreditOutcome, ProviderRef: ref}, nil
}

// Calls returns every call recorded so far, in call order.
func (m *MockGateway) Calls() []GatewayCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GatewayCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsFor returns the recorded calls of one operation.
func (m *MockGateway) CallsFor(op string) []GatewayCall {
	var out []GatewayCall
	for _, c := range m.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStore.
type MockLockStore struct {
	mu     sync.Mutex
	locks  map[string]time.Time
	owners map[string]string
	seq    int

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks:  make(map[string]time.Time),
		owners: make(map[string]string),
	}
}

func (m *MockLockStore) AcquireLedgerLock(ctx context.Context, referenceID string, ttl time.Duration) (string, bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	if m.ForceAcquireFailure {
		return "", false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := "lock:ledger:" + referenceID
	if expiry, exists := m.locks[key]; exists && time.Now().Before(expiry) {
		return "", false, nil // Lock still held.
	}

	m.seq++
	token := "token-" + strconv.Itoa(m.seq)
	m.locks[key] = time.Now().Add(ttl)
	m.owners[key] = token
	return token, true, nil
}

func (m *MockLockStore) ReleaseLedgerLock(ctx context.Context, referenceID, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	key := "lock:ledger:" + referenceID
	if m.owners[key] != token {
		return redis.ErrLockNotHeld
	}
	delete(m.locks, key)
	delete(m.owners, key)
	return nil
}

// IsLocked checks if a ledger is locked (for test assertions).
func (m *MockLockStore) IsLocked(referenceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, exists := m.locks["lock:ledger:"+referenceID]
	return exists && time.Now().Before(expiry)
}

// ──────────────────────────────────────────────
// MOCK CACHE STORE
// ──────────────────────────────────────────────

// MockCacheStore is an in-memory CacheStore.
type MockCacheStore struct {
	mu        sync.Mutex
	summaries map[string]map[string]redis.CachedSummary

	GetCallCount        int32
	HitCount            int32
	InvalidateCallCount int32
}

// NewMockCacheStore creates a new mock cache store.
func NewMockCacheStore() *MockCacheStore {
	return &MockCacheStore{summaries: make(map[string]map[string]redis.CachedSummary)}
}

func (m *MockCacheStore) GetSummary(ctx context.Context, referenceID, currency string) (*redis.CachedSummary, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[referenceID][currency]
	if !ok {
		return nil, nil
	}
	atomic.AddInt32(&m.HitCount, 1)
	return &s, nil
}

func (m *MockCacheStore) SetSummary(ctx context.Context, summary *redis.CachedSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summaries[summary.ReferenceID] == nil {
		m.summaries[summary.ReferenceID] = make(map[string]redis.CachedSummary)
	}
	m.summaries[summary.ReferenceID][summary.Currency] = *summary
	return nil
}

func (m *MockCacheStore) InvalidateLedger(ctx context.Context, referenceID string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.summaries, referenceID)
	return nil
}

// Cached reports whether a summary is cached (for test assertions).
func (m *MockCacheStore) Cached(referenceID, currency string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.summaries[referenceID][currency]
	return ok
}

// ──────────────────────────────────────────────
// HELPERS
// ──────────────────────────────────────────────

var (
	ErrMockDBUnavailable = errors.New("mock: database unavailable")
	ErrMockTransport     = errors.New("mock: connection reset")
)

// money builds a Money value from a decimal string, panicking on bad input.
func money(amount, currency string) domain.Money {
	m, err := domain.ParseMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func cad(amount string) domain.Money { return money(amount, "CAD") }

func selection(instrumentID, limit string) domain.InstrumentSelection {
	if limit == "" {
		return domain.InstrumentSelection{InstrumentID: instrumentID, Limit: domain.Zero("CAD")}
	}
	return domain.InstrumentSelection{InstrumentID: instrumentID, Limit: cad(limit)}
}

// fastSagaConfig keeps retries and timeouts short enough for unit tests.
func fastSagaConfig() service.SagaConfig {
	return service.SagaConfig{
		ProviderTimeout:         200 * time.Millisecond,
		CompensationTimeout:     2 * time.Second,
		CompensationConcurrency: 2,
		VoidAttempts:            3,
		VoidBackoff:             time.Millisecond,
	}
}

// Ensure mocks implement interfaces.
var (
	_ repository.EventRepository      = (*MockEventRepository)(nil)
	_ repository.InstrumentRepository = (*MockInstrumentRepository)(nil)
	_ service.ProviderGateway         = (*MockGateway)(nil)
	_ redis.LockStoreInterface        = (*MockLockStore)(nil)
	_ redis.CacheStoreInterface       = (*MockCacheStore)(nil)
)
