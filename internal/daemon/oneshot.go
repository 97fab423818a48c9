package daemon

import (
	"context"
	"filemirror/internal/model"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
)

type Summary struct {
	Synced  int
	Skipped int
	Failed  int
}

// SyncTree mirrors everything under dir without a watcher: folders first,
// parents before children, then files through the worker pool.
func (a *Agent) SyncTree(ctx context.Context, dir string) (Summary, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to resolve path: %w", err)
	}

	var dirs, files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && a.filter.Ignored(path, true) {
				return filepath.SkipDir
			}
			if a.filter.Check(path, true) == nil {
				dirs = append(dirs, path)
			}
			return nil
		}

		if d.Type().IsRegular() && a.filter.Check(path, false) == nil {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	collect := func(result model.SyncResult) {
		a.record(result)

		mu.Lock()
		defer mu.Unlock()

		switch {
		case result.Err != nil:
			summary.Failed++
		case result.Action == model.ActionSkip:
			summary.Skipped++
		default:
			summary.Synced++
		}
	}

	for _, path := range dirs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		ev := model.NewEvent(model.EventCreated, path, true)
		ev.Synthetic = true
		collect(a.dispatcher.Handle(ctx, ev))
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)

	for _, path := range files {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			ev := model.NewEvent(model.EventCreated, path, false)
			ev.Synthetic = true
			collect(a.dispatcher.Handle(gCtx, ev))
			return nil
		})
	}

	return summary, g.Wait()
}
