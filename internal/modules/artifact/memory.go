package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used when MySQL is unavailable
// and in tests. Documents are stored as encoded snapshots so reads
// reproduce exactly what was persisted.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string][]byte           // note_doc_id -> encoded NoteDoc
	history map[string][]string         // session_id -> note_doc_ids, newest first
	current map[string]string           // session_id -> note_doc_id
	seq     map[string]int64            // session_id -> last assigned seq
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string][]byte),
		history: make(map[string][]string),
		current: make(map[string]string),
		seq:     make(map[string]int64),
	}
}

func (s *MemoryStore) Save(_ context.Context, doc *NoteDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq[doc.SessionID]++
	doc.Seq = s.seq[doc.SessionID]
	doc.ID = DocID(doc.SessionID, doc.Style, doc.Seq)
	doc.CreatedAt = time.Now()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode note document: %w", err)
	}
	s.docs[doc.ID] = data
	s.current[doc.SessionID] = doc.ID

	entries := append([]string{doc.ID}, s.history[doc.SessionID]...)
	for len(entries) > HistoryLimit {
		evicted := entries[len(entries)-1]
		entries = entries[:len(entries)-1]
		delete(s.docs, evicted)
	}
	s.history[doc.SessionID] = entries
	return nil
}

func (s *MemoryStore) get(id string) (*NoteDoc, error) {
	data, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	var doc NoteDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*NoteDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *MemoryStore) Current(_ context.Context, sessionID string) (*NoteDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.current[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: no current document for session %q", ErrNotFound, sessionID)
	}
	return s.get(id)
}

func (s *MemoryStore) History(_ context.Context, sessionID string) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]HistoryEntry, 0, len(s.history[sessionID]))
	for _, id := range s.history[sessionID] {
		doc, err := s.get(id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, HistoryEntry{
			NoteDocID: doc.ID,
			Style:     doc.Style,
			CreatedAt: doc.CreatedAt,
			Current:   s.current[sessionID] == doc.ID,
		})
	}
	return entries, nil
}

func (s *MemoryStore) Revert(_ context.Context, sessionID, noteDocID string) (*NoteDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	retained := false
	for _, id := range s.history[sessionID] {
		if id == noteDocID {
			retained = true
			break
		}
	}
	if !retained {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, noteDocID)
	}

	s.current[sessionID] = noteDocID
	return s.get(noteDocID)
}
