package report

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-matching/internal/application/port"
	"github.com/garyjia/invoice-matching/internal/domain/entity"
	"github.com/garyjia/invoice-matching/internal/infrastructure/storage"
)

// allFacilities names the snapshot taken when no facility is configured
const allFacilities = "all"

// WorkerConfig holds configuration for the snapshot worker
type WorkerConfig struct {
	Interval   time.Duration
	Facilities []string
	Dir        string
	Retain     int
}

// DefaultWorkerConfig returns default configuration
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval: 24 * time.Hour,
		Dir:      "snapshots",
		Retain:   30,
	}
}

// Worker periodically writes an xlsx snapshot of every facility's matches
type Worker struct {
	config  WorkerConfig
	matches port.MatchRepository
	items   port.MatchItemRepository
	storage port.FileStorage
	writer  *Writer
	logger  *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	written   int
	lastError error
}

// NewWorker creates a snapshot worker
func NewWorker(
	config WorkerConfig,
	matches port.MatchRepository,
	items port.MatchItemRepository,
	fileStorage port.FileStorage,
	writer *Writer,
	logger *zap.Logger,
) *Worker {
	if config.Dir == "" {
		config.Dir = DefaultWorkerConfig().Dir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		config:  config,
		matches: matches,
		items:   items,
		storage: fileStorage,
		writer:  writer,
		logger:  logger,
	}
}

// Name implements worker.Worker
func (w *Worker) Name() string {
	return "report-snapshot"
}

// Start begins the snapshot loop. A zero interval leaves the worker idle.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("report worker already running")
	}
	if w.config.Interval <= 0 {
		w.logger.Info("Report snapshots disabled")
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("Report worker started",
		zap.Duration("interval", w.config.Interval),
		zap.Strings("facilities", w.config.Facilities))

	go w.loop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight snapshot
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	if err := w.LastError(); err != nil {
		w.logger.Warn("Report worker stopped after a failed snapshot",
			zap.Int("snapshots_written", w.Written()), zap.Error(err))
		return nil
	}
	w.logger.Info("Report worker stopped", zap.Int("snapshots_written", w.Written()))
	return nil
}

// Written returns how many snapshot files have been written
func (w *Worker) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// LastError returns the error of the most recent run, if any
func (w *Worker) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := w.RunOnce(ctx, now.UTC()); err != nil {
				w.logger.Error("Report snapshot failed", zap.Error(err))
			}
		}
	}
}

// RunOnce writes one snapshot per facility for the day of now and prunes
// snapshots beyond the retention count
func (w *Worker) RunOnce(ctx context.Context, now time.Time) error {
	facilities := w.config.Facilities
	if len(facilities) == 0 {
		facilities = []string{""}
	}

	var firstErr error
	for _, facilityID := range facilities {
		if err := w.snapshot(ctx, facilityID, now); err != nil {
			w.logger.Error("Failed to write snapshot",
				zap.String("facility_id", facilityID),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	w.mu.Lock()
	w.lastError = firstErr
	w.mu.Unlock()
	return firstErr
}

func (w *Worker) snapshot(ctx context.Context, facilityID string, now time.Time) error {
	matches, err := w.load(ctx, facilityID)
	if err != nil {
		return err
	}

	content, err := w.writer.Render(matches)
	if err != nil {
		return fmt.Errorf("render snapshot: %w", err)
	}

	dir := path.Join(w.config.Dir, folderFor(facilityID))
	file := path.Join(dir, now.Format("2006-01-02")+".xlsx")
	if err := w.storage.Save(ctx, file, content); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	w.mu.Lock()
	w.written++
	w.mu.Unlock()

	w.logger.Info("Report snapshot written",
		zap.String("facility_id", facilityID),
		zap.String("path", file),
		zap.Int("matches", len(matches)))

	return w.prune(ctx, dir)
}

func (w *Worker) load(ctx context.Context, facilityID string) ([]*entity.InvoiceMatch, error) {
	matches, err := w.matches.List(ctx, port.MatchFilter{FacilityID: facilityID})
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	for _, m := range matches {
		if m.Items, err = w.items.GetByMatchID(ctx, m.ID); err != nil {
			return nil, fmt.Errorf("load items for %s: %w", m.ID, err)
		}
	}
	return matches, nil
}

// prune keeps the newest Retain files; names sort by date
func (w *Worker) prune(ctx context.Context, dir string) error {
	if w.config.Retain <= 0 {
		return nil
	}
	names, err := w.storage.List(ctx, dir)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	for len(names) > w.config.Retain {
		if err := w.storage.Delete(ctx, path.Join(dir, names[0])); err != nil {
			return fmt.Errorf("prune snapshot: %w", err)
		}
		names = names[1:]
	}
	return nil
}

func folderFor(facilityID string) string {
	if facilityID == "" {
		return allFacilities
	}
	if safe := storage.SanitizeName(facilityID); safe != "" {
		return safe
	}
	return allFacilities
}
