package daemon

import (
	"filemirror/internal/model"
	"sync"
	"time"
)

type AgentState struct {
	mu        sync.RWMutex
	WatchDir  string
	StartedAt time.Time
	Workers   int
	Synced    int
	Failed    int
	LastSync  *time.Time
}

func NewAgentState(watchDir string, workers int) *AgentState {
	return &AgentState{
		WatchDir:  watchDir,
		StartedAt: time.Now(),
		Workers:   workers,
	}
}

func (s *AgentState) RecordSync(result model.SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastSync = new(time.Now())
	if result.Err != nil {
		s.Failed++
	} else {
		s.Synced++
	}
}

func (s *AgentState) Snapshot() model.AgentSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.AgentSnapshot{
		WatchDir:  s.WatchDir,
		StartedAt: s.StartedAt,
		Workers:   s.Workers,
		Synced:    s.Synced,
		Failed:    s.Failed,
		LastSync:  s.LastSync,
	}
}
