package pipeline

import (
	"context"
	"filemirror/internal/logger"
	"filemirror/internal/model"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type scanState int

const (
	scanPending scanState = iota
	scanRunning
)

// Sink receives the synthetic events a scan produces.
type Sink func(model.WatchEvent) bool

// Scheduler runs one delayed, non-recursive scan per directory. A
// directory stays in the pending set from Enqueue until its scan has
// finished, so bursts of events for the same directory cost one scan.
// Subdirectories found by a scan are reported as synthetic creations and
// get their own scan through the sink, or directly when the sink rejects
// them.
type Scheduler struct {
	delay  time.Duration
	filter Filter

	mu     sync.Mutex
	state  map[string]scanState
	ctx    context.Context
	sink   Sink
	closed bool
	wg     sync.WaitGroup

	scans atomic.Int64
}

func NewScheduler(delay time.Duration, filter Filter) *Scheduler {
	return &Scheduler{
		delay:  delay,
		filter: filter,
		state:  make(map[string]scanState),
	}
}

// Start arms the scheduler. Enqueue is a no-op before Start and after Stop.
func (s *Scheduler) Start(ctx context.Context, sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx = ctx
	s.sink = sink
}

// Enqueue schedules a scan of dir and reports whether a new one was
// scheduled. The membership check and insert share one critical section.
func (s *Scheduler) Enqueue(dir string) bool {
	dir = filepath.Clean(dir)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink == nil || s.closed {
		return false
	}

	if _, ok := s.state[dir]; ok {
		return false
	}

	s.state[dir] = scanPending
	s.wg.Add(1)
	go s.run(dir)

	return true
}

func (s *Scheduler) run(dir string) {
	defer s.wg.Done()
	defer s.release(dir)

	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return
	case <-timer.C:
	}

	s.mu.Lock()
	s.state[dir] = scanRunning
	s.mu.Unlock()

	s.scan(dir)
	s.scans.Add(1)
}

func (s *Scheduler) release(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.state, dir)
}

func (s *Scheduler) scan(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Log.Warn("re-scan skipped",
			zap.String("dir", dir),
			zap.Error(err))
		return
	}

	logger.Log.Debug("re-scanning directory",
		zap.String("dir", dir),
		zap.Int("entries", len(entries)))

	for _, entry := range entries {
		if s.ctx.Err() != nil {
			return
		}

		path := filepath.Join(dir, entry.Name())

		switch {
		case entry.IsDir():
			if s.filter.Ignored(path, true) {
				continue
			}
			ev := model.NewEvent(model.EventCreated, path, true)
			ev.Synthetic = true
			if !s.sink(ev) {
				// not mirrored itself (above the anchor or tenant), but may
				// hold mirrored directories further down
				s.Enqueue(path)
			}

		case entry.Type().IsRegular():
			if s.filter.Ignored(path, false) {
				continue
			}
			ev := model.NewEvent(model.EventModified, path, false)
			ev.Synthetic = true
			s.sink(ev)
		}
	}
}

// Stop refuses further scans and waits for the running ones. Pending scans
// only end early when the context passed to Start is cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
}

// Pending is the number of directories waiting for or in a scan.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.state)
}

// Scans is the number of scans completed so far.
func (s *Scheduler) Scans() int64 {
	return s.scans.Load()
}
