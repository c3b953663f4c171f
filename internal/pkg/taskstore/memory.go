package taskstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used when Redis is unavailable
// and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	snaps  map[string]*Snapshot
	active map[string]string // session_id -> task_id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snaps:  make(map[string]*Snapshot),
		active: make(map[string]string),
	}
}

func (s *MemoryStore) Put(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.UpdatedAt = time.Now()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = snap.UpdatedAt
	}
	cp := *snap
	s.snaps[snap.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snaps[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, page, size int, sessionID string, status *Status) ([]*Snapshot, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []*Snapshot
	for _, snap := range s.snaps {
		if sessionID != "" && snap.SessionID != sessionID {
			continue
		}
		if status != nil && snap.Status != *status {
			continue
		}
		cp := *snap
		snaps = append(snaps, &cp)
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})

	total := int64(len(snaps))
	start := (page - 1) * size
	end := start + size
	if start >= len(snaps) {
		return []*Snapshot{}, total, nil
	}
	if end > len(snaps) {
		end = len(snaps)
	}
	return snaps[start:end], total, nil
}

func (s *MemoryStore) AcquireSession(_ context.Context, sessionID, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if holder, held := s.active[sessionID]; held {
		snap, ok := s.snaps[holder]
		if ok && !snap.Status.Terminal() {
			return false, nil
		}
		// Stale marker: the holder vanished or already finished
		// without releasing. Take the slot over.
	}
	s.active[sessionID] = taskID
	return true, nil
}

func (s *MemoryStore) ReleaseSession(_ context.Context, sessionID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active[sessionID] == taskID {
		delete(s.active, sessionID)
	}
	return nil
}

func (s *MemoryStore) ActiveTask(_ context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[sessionID], nil
}

func (s *MemoryStore) DeleteFinished(_ context.Context, beforeMS int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, snap := range s.snaps {
		if !snap.Status.Terminal() {
			continue
		}
		if beforeMS > 0 && snap.CreatedAt.UnixMilli() >= beforeMS {
			continue
		}
		delete(s.snaps, id)
		removed++
	}
	return removed, nil
}
