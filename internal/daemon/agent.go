package daemon

import (
	"context"
	"filemirror/internal/config"
	"filemirror/internal/logger"
	"filemirror/internal/model"
	"filemirror/internal/pathcodec"
	"filemirror/internal/pipeline"
	"filemirror/internal/reconcile"
	"filemirror/internal/repository"
	"filemirror/internal/watcher"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Agent owns one mirroring session: the event queue, the re-scan
// scheduler, the classifier in front of both and the dispatch pool behind
// them.
type Agent struct {
	cfg        *config.Config
	filter     pipeline.Filter
	queue      *pipeline.Queue[model.WatchEvent]
	scheduler  *pipeline.Scheduler
	classifier *pipeline.Classifier
	dispatcher *Dispatcher
	history    *repository.HistoryRepository
	state      *AgentState
	running    atomic.Bool
}

func NewAgent(cfg *config.Config, r reconcile.Remote, history *repository.HistoryRepository) *Agent {
	codec := pathcodec.New(cfg.AnchorKeyword, cfg.TenantKeyword)
	filter := pipeline.NewFilter(codec, cfg.TempSuffixes, cfg.IgnorePrefixes)
	queue := pipeline.NewQueue[model.WatchEvent]()
	scheduler := pipeline.NewScheduler(cfg.DebounceDelay, filter)

	return &Agent{
		cfg:        cfg,
		filter:     filter,
		queue:      queue,
		scheduler:  scheduler,
		classifier: pipeline.NewClassifier(filter, queue, scheduler),
		dispatcher: NewDispatcher(codec, r, cfg.Workers),
		history:    history,
		state:      NewAgentState(cfg.WatchDir, cfg.Workers),
	}
}

// Run watches cfg.WatchDir until ctx is cancelled. On the way out it stops
// taking notifications, cancels pending re-scans, lets the workers drain
// the queue and only then releases the watcher.
func (a *Agent) Run(ctx context.Context) error {
	w, err := watcher.New(a.cfg.BufferSize, a.cfg.MoveWindow)
	if err != nil {
		return err
	}
	defer w.Stop()

	scanCtx, cancelScans := context.WithCancel(ctx)
	defer cancelScans()
	a.scheduler.Start(scanCtx, a.classifier.Handle)

	if err := w.Watch(a.cfg.WatchDir); err != nil {
		return err
	}

	if a.cfg.RescanSchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(a.cfg.RescanSchedule, func() {
			if _, err := a.Rescan(a.cfg.WatchDir); err != nil {
				logger.Log.Warn("scheduled re-scan failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("invalid rescan schedule %q: %w", a.cfg.RescanSchedule, err)
		}
		c.Start()
		defer c.Stop()
	}

	a.running.Store(true)
	defer a.running.Store(false)

	var g errgroup.Group
	results := make(chan model.SyncResult, a.cfg.BufferSize)

	g.Go(func() error {
		defer close(results)
		// in-flight calls are never cut short; shutdown waits for them
		return a.dispatcher.Run(context.WithoutCancel(ctx), a.queue, results)
	})
	g.Go(func() error {
		for result := range results {
			a.record(result)
		}
		return nil
	})

	logger.Log.Info("agent started",
		zap.String("watch_dir", a.cfg.WatchDir),
		zap.Int("workers", a.cfg.Workers),
		zap.Duration("debounce_delay", a.cfg.DebounceDelay))

forward:
	for {
		select {
		case <-ctx.Done():
			break forward
		case ev, ok := <-w.Events():
			if !ok {
				break forward
			}
			a.classifier.Handle(ev)
		}
	}

	logger.Log.Info("agent stopping",
		zap.Int("queued", a.queue.Len()),
		zap.Int("pending_scans", a.scheduler.Pending()))

	cancelScans()
	a.scheduler.Stop()
	a.queue.Close()

	return g.Wait()
}

// Rescan schedules a catch-up scan of dir, which must be inside the watch
// directory. It reports whether a new scan was scheduled.
func (a *Agent) Rescan(dir string) (bool, error) {
	if !a.running.Load() {
		return false, fmt.Errorf("agent is not running")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return false, fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := filepath.Abs(a.cfg.WatchDir)
	if err != nil {
		return false, fmt.Errorf("failed to resolve watch dir: %w", err)
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, fmt.Errorf("%s is outside %s", abs, root)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%s is not a directory", abs)
	}

	return a.scheduler.Enqueue(abs), nil
}

func (a *Agent) record(result model.SyncResult) {
	fields := []zap.Field{
		zap.String("event_id", result.Event.ID),
		zap.String("kind", string(result.Event.Kind)),
		zap.String("action", string(result.Action)),
		zap.String("path", result.Path),
		zap.Bool("synthetic", result.Event.Synthetic),
		zap.Duration("elapsed", result.Duration),
	}

	if result.Err != nil {
		logger.Log.Error("sync failed", append(fields, zap.Error(result.Err))...)
	} else if result.Action != model.ActionSkip {
		logger.Log.Info("synced", fields...)
	} else {
		logger.Log.Debug("skipped", fields...)
	}

	a.state.RecordSync(result)

	if a.history == nil {
		return
	}
	if err := a.history.Save(result); err != nil {
		logger.Log.Warn("failed to save history",
			zap.Error(err))
	}
}

func (a *Agent) Snapshot() model.AgentSnapshot {
	snap := a.state.Snapshot()
	snap.Received = int(a.classifier.Received())
	snap.Dropped = int(a.classifier.Dropped())
	snap.QueueLength = a.queue.Len()
	snap.PendingScans = a.scheduler.Pending()
	return snap
}
