package retrieval

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used when Redis is unavailable
// and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string][]Chunk
	opts   Options
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		chunks: make(map[string][]Chunk),
		opts:   opts.normalized(),
	}
}

func (s *MemoryStore) Ingest(_ context.Context, sessionID string, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[sessionID] = append(s.chunks[sessionID], chunks...)
	return nil
}

func (s *MemoryStore) Count(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[sessionID]), nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, sessionID)
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, sessionID, text string, k int) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return []Chunk{}, nil
	}

	opts := s.opts
	if k > 0 {
		opts.TopK = k
	}

	s.mu.RLock()
	candidates := make([]Chunk, len(s.chunks[sessionID]))
	copy(candidates, s.chunks[sessionID])
	s.mu.RUnlock()

	return rank(text, candidates, opts), nil
}
