package app

import (
	"context"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"payments/internal/config"
	"payments/internal/repository"
	"payments/internal/repository/bolt"
	"payments/internal/repository/postgres"
)

// Storage is the event and instrument store selected by configuration.
type Storage struct {
	Events      repository.EventRepository
	Instruments repository.InstrumentRepository

	close func() error
}

// Close releases the underlying database.
func (s *Storage) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// NewStorage opens the configured store. Postgres is migrated when AutoMigrate is set.
func NewStorage(ctx context.Context, cfg *config.Config, nrApp *newrelic.Application, logger *zap.Logger) (*Storage, error) {
	switch cfg.Storage.Driver {
	case "", "postgres":
		db, err := NewDatabase(ctx, cfg.Database, nrApp)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		logger.Info("connected to PostgreSQL",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.DBName),
		)
		return &Storage{
			Events:      postgres.NewEventRepository(db),
			Instruments: postgres.NewInstrumentRepository(db),
			close:       db.Close,
		}, nil

	case "bolt":
		store, err := bolt.Open(cfg.Storage.BoltPath)
		if err != nil {
			return nil, err
		}
		logger.Info("opened bolt store", zap.String("path", cfg.Storage.BoltPath))
		return &Storage{
			Events:      store.Events(),
			Instruments: store.Instruments(),
			close:       store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
