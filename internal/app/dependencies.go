package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/storage/memory"
	"github.com/vladislavdragonenkov/orders/internal/storage/postgres"
)

// Dependencies содержит хранилища приложения.
// Store заполнен только для postgres-драйвера.
type Dependencies struct {
	Repo        domain.OrderRepository
	OutboxRepo  domain.OutboxRepository
	HistoryRepo domain.StatusHistoryRepository
	Store       *postgres.Store
	Logger      *log.Entry
}

// NewDependencies инициализирует хранилища по выбранному драйверу.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		logger.Info("using in-memory storage")
		return &Dependencies{
			Repo:        memory.NewOrderRepository(),
			OutboxRepo:  memory.NewOutboxRepository(),
			HistoryRepo: memory.NewStatusHistoryRepository(),
			Logger:      logger,
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires ORDERS_POSTGRES_DSN")
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}

		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		logger.Info("using postgres storage")
		return &Dependencies{
			Repo:        postgres.NewOrderRepository(store),
			OutboxRepo:  postgres.NewOutboxRepository(store),
			HistoryRepo: postgres.NewStatusHistoryRepository(store),
			Store:       store,
			Logger:      logger,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
	}
}

// Close освобождает ресурсы хранилища.
func (d *Dependencies) Close() {
	if d == nil || d.Store == nil {
		return
	}
	if err := d.Store.Close(); err != nil {
		d.Logger.WithError(err).Warn("failed to close postgres store")
	}
}
