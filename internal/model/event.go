package model

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventCreated  EventKind = "CREATED"
	EventModified EventKind = "MODIFIED"
	EventMoved    EventKind = "MOVED"
	EventDeleted  EventKind = "DELETED"
)

// WatchEvent is one filesystem notification. DestPath is only set for EventMoved.
type WatchEvent struct {
	ID        string
	Kind      EventKind
	SrcPath   string
	DestPath  string
	IsDir     bool
	Synthetic bool
	Timestamp time.Time
}

func NewEvent(kind EventKind, src string, isDir bool) WatchEvent {
	return WatchEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		SrcPath:   src,
		IsDir:     isDir,
		Timestamp: time.Now(),
	}
}

func NewMoveEvent(src, dest string, isDir bool) WatchEvent {
	e := NewEvent(EventMoved, src, isDir)
	e.DestPath = dest
	return e
}

// ScanDir is the directory the re-scan should cover after this event.
func (e WatchEvent) ScanDir() string {
	p := e.SrcPath
	if e.Kind == EventMoved && e.DestPath != "" {
		p = e.DestPath
	}

	if e.IsDir {
		return p
	}

	return filepath.Dir(p)
}

type Action string

const (
	ActionCreateFolder Action = "CREATE_FOLDER"
	ActionUpdateFolder Action = "UPDATE_FOLDER"
	ActionDeleteFolder Action = "DELETE_FOLDER"
	ActionCreateFile   Action = "CREATE_FILE"
	ActionUpdateFile   Action = "UPDATE_FILE"
	ActionDeleteFile   Action = "DELETE_FILE"
	ActionSkip         Action = "SKIP"
)

type SyncResult struct {
	Event    WatchEvent
	Action   Action
	Path     string
	Err      error
	Duration time.Duration
}
