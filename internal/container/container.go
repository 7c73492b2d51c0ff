package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-matching/internal/application/dispatcher"
	"github.com/garyjia/invoice-matching/internal/application/port"
	"github.com/garyjia/invoice-matching/internal/application/service"
	"github.com/garyjia/invoice-matching/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-matching/internal/infrastructure/report"
	"github.com/garyjia/invoice-matching/internal/infrastructure/worker"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	sqlDB        *sql.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - Locking
	locker port.MatchLocker
	redis  *redis.Client

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle
	writer     *report.Writer

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Match         port.MatchRepository
	MatchItem     port.MatchItemRepository
	PurchaseOrder port.PurchaseOrderRepository
	GoodsReceipt  port.GoodsReceiptRepository
	History       port.HistoryRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Matching    service.MatchingService
	Procurement service.ProcurementService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
		writer: report.NewWriter(),
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Match locker
// 3. Event dispatcher
// 4. Application services
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize locker
	if err := c.initLocker(); err != nil {
		return fmt.Errorf("failed to initialize locker: %w", err)
	}
	c.logger.Info("Match locker initialized", zap.String("backend", c.config.Lock.Backend))

	// Step 3: Initialize dispatcher
	if err := c.initDispatcher(); err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	c.logger.Info("Dispatcher initialized")

	// Step 4: Initialize application services
	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	// Step 5: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers (reverse of step 5)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 2: Close dispatcher (reverse of step 3)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 3: Close redis (reverse of step 2)
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	// Step 4: Close database (reverse of step 1)
	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Check condenses Health for the HTTP health endpoint. The container is
// healthy only once started and while every component is.
func (c *Container) Check() (bool, map[string]string) {
	health := c.Health()
	components := make(map[string]string, len(health.Components))
	for name, h := range health.Components {
		switch {
		case h.Healthy:
			components[name] = "ok"
		case h.Message != "":
			components[name] = h.Message
		default:
			components[name] = "unhealthy"
		}
	}
	return health.Overall && c.Ready(), components
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	// Check database
	switch {
	case c.sqlDB == nil:
		set("database", ComponentHealth{Healthy: false, Message: "not initialized"})
	case c.sqlDB.Ping() != nil:
		set("database", ComponentHealth{Healthy: false, Message: "ping failed"})
	default:
		set("database", ComponentHealth{Healthy: true})
	}

	// Check redis when it backs the locks
	if c.redis != nil {
		ctx := c.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := c.redis.Ping(ctx).Err(); err != nil {
			set("redis", ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("redis", ComponentHealth{Healthy: true})
		}
	}

	// Check workers
	if c.workers != nil {
		set("workers", ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()),
		})
	} else {
		set("workers", ComponentHealth{Healthy: false, Message: "not initialized"})
	}

	// Check dispatcher: history must be recorded for every audited event
	if c.dispatcher != nil {
		missing := ""
		for _, t := range auditedEvents {
			if !hasHandler(c.dispatcher.ListHandlers(t), historyRecorderName) {
				missing = t.String()
				break
			}
		}
		if missing != "" {
			set("dispatcher", ComponentHealth{Healthy: false, Message: "no history recorder for " + missing})
		} else {
			set("dispatcher", ComponentHealth{Healthy: true})
		}
	} else {
		set("dispatcher", ComponentHealth{Healthy: false, Message: "not initialized"})
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.sqlDB = dbBundle.SqlDB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos

	return nil
}

// initLocker creates the per-match locker.
func (c *Container) initLocker() error {
	bundle, err := ProvideLocker(c.ctx, &c.config.Lock, c.logger)
	if err != nil {
		return err
	}
	c.locker = bundle.Locker
	c.redis = bundle.Redis
	return nil
}

// initDispatcher creates the dispatcher with its subscribers.
func (c *Container) initDispatcher() error {
	d, err := ProvideDispatcher(c.repositories.History, c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = d
	return nil
}

// initServices creates the application services.
func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Locker:     c.locker,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

// initWorkers creates the workers and starts them.
func (c *Container) initWorkers() error {
	manager, err := ProvideWorkers(&WorkerDeps{
		Repos:     c.repositories,
		ReportCfg: &c.config.Report,
		Writer:    c.writer,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = manager

	return c.workers.StartAll(c.ctx)
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns the repository bundle.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Locker returns the per-match locker.
func (c *Container) Locker() port.MatchLocker {
	return c.locker
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns the service bundle.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// ReportWriter returns the xlsx writer shared by the export endpoint and
// the snapshot worker.
func (c *Container) ReportWriter() *report.Writer {
	return c.writer
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the root logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// ServiceLogger returns the key-value logger used by services and HTTP handlers.
func (c *Container) ServiceLogger() service.Logger {
	return newServiceLogger(c.logger)
}

// Config returns the container configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the service.Logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func newServiceLogger(logger *zap.Logger) *zapLoggerAdapter {
	return &zapLoggerAdapter{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

func hasHandler(handlers []dispatcher.HandlerInfo, name string) bool {
	for _, h := range handlers {
		if h.Name == name {
			return true
		}
	}
	return false
}
