package daemon

import (
	"context"
	"errors"
	"filemirror/internal/logger"
	"filemirror/internal/model"
	"filemirror/internal/pathcodec"
	"filemirror/internal/pipeline"
	"filemirror/internal/reconcile"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dispatcher maps queued events onto the folder and file reconcilers.
type Dispatcher struct {
	codec   pathcodec.Codec
	folders *reconcile.Folders
	files   *reconcile.Files
	workers int
}

func NewDispatcher(codec pathcodec.Codec, r reconcile.Remote, workers int) *Dispatcher {
	folders := reconcile.NewFolders(r)

	return &Dispatcher{
		codec:   codec,
		folders: folders,
		files:   reconcile.NewFiles(r, folders),
		workers: max(workers, 1),
	}
}

// Run starts the worker pool and returns once the queue is closed and
// drained. Each event yields exactly one result on results.
func (d *Dispatcher) Run(ctx context.Context, events *pipeline.Queue[model.WatchEvent], results chan<- model.SyncResult) error {
	g, gCtx := errgroup.WithContext(ctx)

	for range d.workers {
		g.Go(func() error {
			for {
				ev, ok := events.Pop()
				if !ok {
					return nil
				}

				select {
				case results <- d.Handle(gCtx, ev):
				case <-gCtx.Done():
					return gCtx.Err()
				}
			}
		})
	}

	return g.Wait()
}

// Handle reconciles one event synchronously.
func (d *Dispatcher) Handle(ctx context.Context, ev model.WatchEvent) model.SyncResult {
	start := time.Now()

	action, path, err := d.dispatch(ctx, ev)
	result := model.SyncResult{
		Event:  ev,
		Action: action,
		Path:   path,
		Err:    err,
	}

	switch {
	case err == nil:
	case errors.Is(err, reconcile.ErrAlreadyMirrored):
		result.Action = model.ActionSkip
		result.Err = nil

	case errors.Is(err, reconcile.ErrNotFound) && action != model.ActionUpdateFile:
		// deletes of absent entries and uploads of files that vanished
		// locally are settled already
		logger.Log.Warn("nothing to reconcile",
			zap.String("event_id", ev.ID),
			zap.String("kind", string(ev.Kind)),
			zap.String("path", path),
			zap.Error(err))
		result.Action = model.ActionSkip
		result.Err = nil
	}

	result.Duration = time.Since(start)
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, ev model.WatchEvent) (model.Action, string, error) {
	src, err := d.codec.Decode(ev.SrcPath)
	if err != nil {
		return model.ActionSkip, ev.SrcPath, err
	}

	switch ev.Kind {
	case model.EventCreated, model.EventModified:
		if ev.IsDir {
			_, err := d.folders.Create(ctx, src)
			return model.ActionCreateFolder, src.String(), err
		}
		return model.ActionCreateFile, src.String(), d.files.Create(ctx, src)

	case model.EventMoved:
		dst, err := d.codec.Decode(ev.DestPath)
		if err != nil {
			return model.ActionSkip, ev.DestPath, err
		}

		if ev.IsDir {
			return model.ActionUpdateFolder, dst.String(), d.folders.Update(ctx, src, dst)
		}
		return model.ActionUpdateFile, dst.String(), d.files.Update(ctx, src, dst)

	case model.EventDeleted:
		if ev.IsDir {
			return model.ActionDeleteFolder, src.String(), d.folders.Delete(ctx, src)
		}
		return model.ActionDeleteFile, src.String(), d.files.Delete(ctx, src)

	default:
		return model.ActionSkip, src.String(), fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}
