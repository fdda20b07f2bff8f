// Package bolt provides an embedded BoltDB implementation of the event and
// instrument repositories, for single-node deployments and local development.
//
// Events are stored as JSON under their id. A second bucket keeps, per
// reference id, a nested bucket of sequence → event id so the ledger for a
// reference id can be read back in append order without a full scan.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"payments/internal/domain"
	"payments/internal/repository"
)

var (
	eventsBucket      = []byte("events")
	referencesBucket  = []byte("event_references")
	instrumentsBucket = []byte("instruments")
)

// Store wraps a BoltDB database.
type Store struct {
	db *bolt.DB
}

// EventRepository is a BoltDB implementation of repository.EventRepository.
type EventRepository struct {
	db *bolt.DB
}

// InstrumentRepository is a BoltDB implementation of repository.InstrumentRepository.
type InstrumentRepository struct {
	db *bolt.DB
}

// Ensure interfaces are satisfied.
var (
	_ repository.EventRepository      = (*EventRepository)(nil)
	_ repository.InstrumentRepository = (*InstrumentRepository)(nil)
)

// Open opens (or creates) a BoltDB database at path and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{eventsBucket, referencesBucket, instrumentsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Events returns the event repository backed by this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Instruments returns the instrument repository backed by this store.
func (s *Store) Instruments() *InstrumentRepository {
	return &InstrumentRepository{db: s.db}
}

type eventRecord struct {
	ID                 string             `json:"id"`
	ParentID           string             `json:"parent_id,omitempty"`
	Type               domain.EventType   `json:"type"`
	Status             domain.EventStatus `json:"status"`
	Amount             domain.Money       `json:"amount"`
	InstrumentID       string             `json:"instrument_id"`
	OriginalInstrument bool               `json:"original_instrument"`
	PlannedSteps       int                `json:"planned_steps,omitempty"`
	ReferenceID        string             `json:"reference_id"`
	ProviderRef        string             `json:"provider_ref,omitempty"`
	Message            string             `json:"message,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

func toEventRecord(e *domain.PaymentEvent) eventRecord {
	return eventRecord{
		ID:                 e.ID,
		ParentID:           e.ParentID,
		Type:               e.Type,
		Status:             e.Status,
		Amount:             e.Amount,
		InstrumentID:       e.InstrumentID,
		OriginalInstrument: e.OriginalInstrument,
		PlannedSteps:       e.PlannedSteps,
		ReferenceID:        e.ReferenceID,
		ProviderRef:        e.ProviderRef,
		Message:            e.Message,
		CreatedAt:          e.CreatedAt,
	}
}

func (r eventRecord) toDomain() *domain.PaymentEvent {
	return &domain.PaymentEvent{
		ID:                 r.ID,
		ParentID:           r.ParentID,
		Type:               r.Type,
		Status:             r.Status,
		Amount:             r.Amount,
		InstrumentID:       r.InstrumentID,
		OriginalInstrument: r.OriginalInstrument,
		PlannedSteps:       r.PlannedSteps,
		ReferenceID:        r.ReferenceID,
		ProviderRef:        r.ProviderRef,
		Message:            r.Message,
		CreatedAt:          r.CreatedAt,
	}
}

// Append persists a new event. Appending an id twice fails with repository.ErrDuplicateID.
func (s *EventRepository) Append(ctx context.Context, event *domain.PaymentEvent) error {
	data, err := json.Marshal(toEventRecord(event))
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		events := tx.Bucket(eventsBucket)
		if events.Get([]byte(event.ID)) != nil {
			return fmt.Errorf("%w: event %s", repository.ErrDuplicateID, event.ID)
		}
		if err := events.Put([]byte(event.ID), data); err != nil {
			return err
		}

		refs, err := tx.Bucket(referencesBucket).CreateBucketIfNotExists([]byte(event.ReferenceID))
		if err != nil {
			return err
		}
		seq, err := refs.NextSequence()
		if err != nil {
			return err
		}
		return refs.Put(sequenceKey(seq), []byte(event.ID))
	})
}

// GetByID retrieves an event by ID.
func (s *EventRepository) GetByID(ctx context.Context, id string) (*domain.PaymentEvent, error) {
	var record eventRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(eventsBucket).Get([]byte(id))
		if v == nil {
			return repository.ErrNotFound
		}
		return json.Unmarshal(v, &record)
	})
	if err != nil {
		return nil, err
	}

	return record.toDomain(), nil
}

// FindByReferenceID retrieves all events for a reference id in append order.
func (s *EventRepository) FindByReferenceID(ctx context.Context, referenceID string) ([]*domain.PaymentEvent, error) {
	events := make([]*domain.PaymentEvent, 0)

	err := s.db.View(func(tx *bolt.Tx) error {
		refs := tx.Bucket(referencesBucket).Bucket([]byte(referenceID))
		if refs == nil {
			return nil
		}
		all := tx.Bucket(eventsBucket)

		return refs.ForEach(func(_, id []byte) error {
			v := all.Get(id)
			if v == nil {
				return fmt.Errorf("event %s indexed under %s but missing", id, referenceID)
			}
			var record eventRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			events = append(events, record.toDomain())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

type instrumentRecord struct {
	ID         string                `json:"id"`
	ProviderID string                `json:"provider_id"`
	Kind       domain.InstrumentKind `json:"kind"`
	Label      string                `json:"label"`
	CreatedAt  time.Time             `json:"created_at"`
}

// Create adds a new instrument.
func (s *InstrumentRepository) Create(ctx context.Context, instrument *domain.Instrument) error {
	data, err := json.Marshal(instrumentRecord(*instrument))
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(instrumentsBucket)
		if b.Get([]byte(instrument.ID)) != nil {
			return fmt.Errorf("%w: instrument %s", repository.ErrDuplicateID, instrument.ID)
		}
		return b.Put([]byte(instrument.ID), data)
	})
}

// GetByID retrieves an instrument by ID.
func (s *InstrumentRepository) GetByID(ctx context.Context, id string) (*domain.Instrument, error) {
	var record instrumentRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(instrumentsBucket).Get([]byte(id))
		if v == nil {
			return repository.ErrNotFound
		}
		return json.Unmarshal(v, &record)
	})
	if err != nil {
		return nil, err
	}

	instrument := domain.Instrument(record)
	return &instrument, nil
}

// GetAll retrieves all instruments.
func (s *InstrumentRepository) GetAll(ctx context.Context) ([]*domain.Instrument, error) {
	var instruments []*domain.Instrument

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(instrumentsBucket).ForEach(func(_, v []byte) error {
			var record instrumentRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			instrument := domain.Instrument(record)
			instruments = append(instruments, &instrument)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return instruments, nil
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
