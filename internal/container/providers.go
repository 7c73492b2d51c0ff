package container

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-matching/internal/application/dispatcher"
	"github.com/garyjia/invoice-matching/internal/application/port"
	"github.com/garyjia/invoice-matching/internal/application/service"
	"github.com/garyjia/invoice-matching/internal/domain/event"
	"github.com/garyjia/invoice-matching/internal/infrastructure/lock"
	"github.com/garyjia/invoice-matching/internal/infrastructure/persistence/repository"
	"github.com/garyjia/invoice-matching/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-matching/internal/infrastructure/report"
	"github.com/garyjia/invoice-matching/internal/infrastructure/storage"
	"github.com/garyjia/invoice-matching/internal/infrastructure/worker"
	"github.com/garyjia/invoice-matching/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// LockBundle holds the match locker and the redis client backing it, if any.
type LockBundle struct {
	Locker port.MatchLocker
	Redis  *redis.Client
}

// ProvideDatabase opens the database, applies pending migrations and wraps
// the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	// An empty directory applies the embedded schema
	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.MigrationsDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on top of the transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Match:         repository.NewMatchRepository(db, logger),
		MatchItem:     repository.NewMatchItemRepository(db, logger),
		PurchaseOrder: repository.NewPurchaseOrderRepository(db, logger),
		GoodsReceipt:  repository.NewGoodsReceiptRepository(db, logger),
		History:       repository.NewHistoryRepository(db, logger),
	}, nil
}

// ProvideLocker builds the per-match locker for the configured backend.
// The redis backend pings the server before returning.
func ProvideLocker(ctx context.Context, cfg *LockConfig, logger *zap.Logger) (*LockBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lock config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Backend {
	case "", "memory":
		return &LockBundle{Locker: lock.WithTimeout(lock.NewMemoryLocker(), cfg.Timeout)}, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}

		locker := lock.NewRedisLocker(rdb, lock.RedisConfig{
			Prefix: cfg.Prefix,
			TTL:    cfg.TTL,
		}, logger)
		logger.Info("Using redis match locks", zap.String("addr", cfg.RedisAddr))
		return &LockBundle{Locker: lock.WithTimeout(locker, cfg.Timeout), Redis: rdb}, nil

	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

const historyRecorderName = "history_recorder"

// auditedEvents are written to the match history
var auditedEvents = []event.Type{event.TypeMatchCreated, event.TypeStatusChanged, event.TypeVarianceResolved}

// ProvideDispatcher creates the event dispatcher and subscribes the
// history recorder and integrity logger.
func ProvideDispatcher(history port.HistoryRepository, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if history == nil {
		return nil, fmt.Errorf("history repository is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	d := dispatcher.NewDispatcher(dispatcher.WithLogger(logger))

	recorder := service.NewHistoryRecorder(history)
	for _, t := range auditedEvents {
		d.SubscribeNamed(t, historyRecorderName, recorder.Handle)
	}
	d.SubscribeNamed(event.TypeIntegrityWarning, "integrity_logger",
		service.NewIntegrityLogger(newServiceLogger(logger)).Handle)

	return d, nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Locker     port.MatchLocker
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Locker == nil {
		return nil, fmt.Errorf("locker is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := newServiceLogger(deps.Logger)

	return &ServiceBundle{
		Matching: service.NewMatchingService(service.MatchingDeps{
			Matches:    deps.Repos.Match,
			Items:      deps.Repos.MatchItem,
			Orders:     deps.Repos.PurchaseOrder,
			Receipts:   deps.Repos.GoodsReceipt,
			History:    deps.Repos.History,
			TxManager:  deps.TxManager,
			Locker:     deps.Locker,
			Dispatcher: deps.Dispatcher,
			Logger:     serviceLogger,
		}),
		Procurement: service.NewProcurementService(
			deps.Repos.PurchaseOrder,
			deps.Repos.GoodsReceipt,
			deps.TxManager,
			serviceLogger,
		),
	}, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Repos     *RepositoryBundle
	ReportCfg *ReportConfig
	Writer    *report.Writer
	Logger    *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.ReportCfg == nil {
		return nil, fmt.Errorf("report config is required")
	}
	if deps.Writer == nil {
		return nil, fmt.Errorf("report writer is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	snapshots := report.NewWorker(
		report.WorkerConfig{
			Interval:   deps.ReportCfg.Interval,
			Facilities: deps.ReportCfg.Facilities,
			Retain:     deps.ReportCfg.Retain,
		},
		deps.Repos.Match,
		deps.Repos.MatchItem,
		storage.NewLocalFileStorage(deps.ReportCfg.OutputDir, deps.Logger),
		deps.Writer,
		deps.Logger,
	)
	manager.Register(snapshots)

	return manager, nil
}
