package pipeline

import (
	"errors"
	"filemirror/internal/logger"
	"filemirror/internal/model"
	"sync/atomic"

	"go.uber.org/zap"
)

// Classifier is the single entry point for watch events. It drops noise,
// pushes what is left onto the event queue and asks the scheduler for a
// catch-up scan of the directory the event touched.
type Classifier struct {
	filter    Filter
	events    *Queue[model.WatchEvent]
	scheduler *Scheduler

	received atomic.Int64
	dropped  atomic.Int64
}

func NewClassifier(filter Filter, events *Queue[model.WatchEvent], scheduler *Scheduler) *Classifier {
	return &Classifier{
		filter:    filter,
		events:    events,
		scheduler: scheduler,
	}
}

// Handle classifies ev and, when it is kept, queues it and schedules a
// re-scan for creations, modifications and moves.
func (c *Classifier) Handle(ev model.WatchEvent) bool {
	ev, ok := c.admit(ev)
	if !ok {
		return false
	}

	switch ev.Kind {
	case model.EventCreated, model.EventModified, model.EventMoved:
		c.scheduler.Enqueue(ev.ScanDir())
	case model.EventDeleted:
	}

	return true
}

func (c *Classifier) admit(ev model.WatchEvent) (model.WatchEvent, bool) {
	c.received.Add(1)

	ev, err := c.classify(ev)
	if err != nil {
		c.dropped.Add(1)

		level := logger.Log.Debug
		if !errors.Is(err, errIgnored) {
			level = logger.Log.Info
		}
		level("event dropped",
			zap.String("event_id", ev.ID),
			zap.String("kind", string(ev.Kind)),
			zap.String("path", ev.SrcPath),
			zap.Error(err))

		return ev, false
	}

	if !c.events.Push(ev) {
		c.dropped.Add(1)
		return ev, false
	}

	return ev, true
}

// classify validates ev. A move with only one usable side is rewritten:
// leaving the mirrored tree is a delete, entering it is a create.
func (c *Classifier) classify(ev model.WatchEvent) (model.WatchEvent, error) {
	switch ev.Kind {
	case model.EventCreated, model.EventModified, model.EventDeleted:
		return ev, c.filter.Check(ev.SrcPath, ev.IsDir)

	case model.EventMoved:
		srcErr := c.filter.Check(ev.SrcPath, ev.IsDir)
		dstErr := c.filter.Check(ev.DestPath, ev.IsDir)

		switch {
		case srcErr == nil && dstErr == nil:
			return ev, nil
		case dstErr == nil:
			out := model.NewEvent(model.EventCreated, ev.DestPath, ev.IsDir)
			out.ID = ev.ID
			return out, nil
		case srcErr == nil:
			out := model.NewEvent(model.EventDeleted, ev.SrcPath, ev.IsDir)
			out.ID = ev.ID
			return out, nil
		default:
			return ev, srcErr
		}

	default:
		return ev, errors.New("unknown event kind")
	}
}

func (c *Classifier) Received() int64 {
	return c.received.Load()
}

func (c *Classifier) Dropped() int64 {
	return c.dropped.Load()
}
