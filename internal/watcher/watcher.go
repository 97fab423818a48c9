// Package watcher turns fsnotify notifications for a directory tree into
// model.WatchEvent values. Renames are paired with the creation that
// follows them so that moves inside the tree arrive as one MOVED event.
package watcher

import (
	"filemirror/internal/logger"
	"filemirror/internal/model"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type pendingRename struct {
	path  string
	isDir bool
}

type Watcher struct {
	fw         *fsnotify.Watcher
	moveWindow time.Duration
	eventCh    chan model.WatchEvent
	doneCh     chan struct{}
	stopOnce   sync.Once

	// watched directories; owned by the run goroutine once Watch returns
	dirs map[string]struct{}
	// directories already reported as moved or removed, whose own watch
	// may still deliver a trailing RENAME or REMOVE
	gone map[string]time.Time
}

const goneTTL = time.Second

func New(bufferSize int, moveWindow time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		fw:         fw,
		moveWindow: moveWindow,
		eventCh:    make(chan model.WatchEvent, bufferSize),
		doneCh:     make(chan struct{}),
		dirs:       make(map[string]struct{}),
		gone:       make(map[string]time.Time),
	}, nil
}

func (w *Watcher) Watch(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	if _, err := os.Stat(absDir); err != nil {
		return fmt.Errorf("watch directory not found: %w", err)
	}

	if err := w.addRecursive(absDir); err != nil {
		return err
	}

	logger.Log.Info("watcher started",
		zap.String("dir", absDir),
		zap.Int("directories", len(w.dirs)))

	go w.run()
	return nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if err := w.fw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			w.dirs[path] = struct{}{}

			logger.Log.Debug("watching directory",
				zap.String("path", path))
		}

		return nil
	})
}

// forget drops dir and everything below it from the watch list.
func (w *Watcher) forget(dir string) {
	now := time.Now()
	prefix := dir + string(filepath.Separator)
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
			w.gone[d] = now
			_ = w.fw.Remove(d)
		}
	}
}

// echo reports whether path is the trailing self notification of a
// directory already reported.
func (w *Watcher) echo(path string) bool {
	for d, at := range w.gone {
		if time.Since(at) > goneTTL {
			delete(w.gone, d)
		}
	}

	if _, ok := w.gone[path]; ok {
		delete(w.gone, path)
		return true
	}

	return false
}

func (w *Watcher) isDir(path string) bool {
	_, ok := w.dirs[path]
	return ok
}

func (w *Watcher) run() {
	defer close(w.eventCh)

	var (
		pending *pendingRename
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	// flush turns an unpaired rename into a delete: the entry left the tree.
	flush := func() bool {
		if pending == nil {
			return true
		}

		if timer != nil {
			timer.Stop()
			timerC = nil
		}

		p := pending
		pending = nil
		if p.isDir {
			w.forget(p.path)
		}

		return w.emit(model.NewEvent(model.EventDeleted, p.path, p.isDir))
	}

	for {
		select {
		case <-w.doneCh:
			logger.Log.Info("watcher stopping")
			return

		case <-timerC:
			timerC = nil
			if !flush() {
				return
			}

		case fsEvent, ok := <-w.fw.Events:
			if !ok {
				return
			}

			var event model.WatchEvent
			switch {
			case fsEvent.Op.Has(fsnotify.Create):
				info, err := os.Stat(fsEvent.Name)
				isDir := err == nil && info.IsDir()

				if pending != nil {
					timer.Stop()
					timerC = nil

					event = model.NewMoveEvent(pending.path, fsEvent.Name, pending.isDir || isDir)
					if pending.isDir {
						w.forget(pending.path)
					}
					pending = nil
				} else {
					event = model.NewEvent(model.EventCreated, fsEvent.Name, isDir)
				}

				if isDir {
					if err := w.addRecursive(fsEvent.Name); err != nil {
						logger.Log.Warn("failed to watch new directory",
							zap.String("path", fsEvent.Name),
							zap.Error(err))
					}
				}

			case fsEvent.Op.Has(fsnotify.Write):
				if w.isDir(fsEvent.Name) {
					continue
				}
				event = model.NewEvent(model.EventModified, fsEvent.Name, false)

			case fsEvent.Op.Has(fsnotify.Remove):
				if w.echo(fsEvent.Name) {
					continue
				}

				isDir := w.isDir(fsEvent.Name)
				if isDir {
					w.forget(fsEvent.Name)
				}
				event = model.NewEvent(model.EventDeleted, fsEvent.Name, isDir)

			case fsEvent.Op.Has(fsnotify.Rename):
				if w.echo(fsEvent.Name) || (pending != nil && pending.path == fsEvent.Name) {
					continue
				}
				if !flush() {
					return
				}

				pending = &pendingRename{path: fsEvent.Name, isDir: w.isDir(fsEvent.Name)}
				timer = time.NewTimer(w.moveWindow)
				timerC = timer.C
				continue

			default:
				continue
			}

			if !w.emit(event) {
				return
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}

			logger.Log.Error("watcher error",
				zap.Error(err))
		}
	}
}

// emit blocks until the event is taken or the watcher stops.
func (w *Watcher) emit(event model.WatchEvent) bool {
	select {
	case w.eventCh <- event:
		return true
	case <-w.doneCh:
		return false
	}
}

func (w *Watcher) Events() <-chan model.WatchEvent {
	return w.eventCh
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.doneCh)
		_ = w.fw.Close()
	})
}
