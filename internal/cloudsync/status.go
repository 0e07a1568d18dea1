package cloudsync

import (
	"sync"
	"time"
)

type SyncStatus struct {
	Connected       bool   `json:"connected"`
	LastSuccessUnix int64  `json:"last_success_unix"`
	LastChecksum    string `json:"last_checksum"`
	LastError       string `json:"last_error"`
	Cycles          int64  `json:"cycles"`
	Pending         int    `json:"pending"`
	Conflicts       int    `json:"conflicts"`
}

type statusTracker struct {
	mu     sync.RWMutex
	status SyncStatus
}

func (s *statusTracker) MarkSyncSuccess(checksum string, pending, conflicts int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Connected = true
	s.status.LastError = ""
	s.status.LastChecksum = checksum
	s.status.LastSuccessUnix = at.Unix()
	s.status.Cycles++
	s.status.Pending = pending
	s.status.Conflicts = conflicts
}

func (s *statusTracker) MarkSyncError(err string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Connected = false
	s.status.LastError = err
	s.status.Cycles++
}

func (s *statusTracker) Snapshot() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
