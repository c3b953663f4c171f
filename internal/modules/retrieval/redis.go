package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	redisc "github.com/studycompanion/core/internal/pkg/redis"
	"go.uber.org/zap"
)

const chunkKeyPrefix = "sc:chunks:"

// RedisStore keeps each session's chunks in a Redis list keyed by
// session id, which makes cross-session isolation a key-space property.
type RedisStore struct {
	rc   *redisc.Client
	opts Options
	log  *zap.Logger
}

func NewRedisStore(rc *redisc.Client, opts Options, log *zap.Logger) *RedisStore {
	return &RedisStore{rc: rc, opts: opts.normalized(), log: log}
}

func chunkKey(sessionID string) string { return chunkKeyPrefix + sessionID }

func (s *RedisStore) Ingest(ctx context.Context, sessionID string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(chunks))
	for _, c := range chunks {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode chunk %q: %w", c.ID, err)
		}
		values = append(values, data)
	}
	return s.rc.Raw().RPush(ctx, chunkKey(sessionID), values...).Err()
}

func (s *RedisStore) Count(ctx context.Context, sessionID string) (int, error) {
	n, err := s.rc.Raw().LLen(ctx, chunkKey(sessionID)).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return s.rc.Raw().Del(ctx, chunkKey(sessionID)).Err()
}

// Query returns the best-matching chunks of one session. Backend
// errors and timeouts degrade to an empty result.
func (s *RedisStore) Query(ctx context.Context, sessionID, text string, k int) ([]Chunk, error) {
	opts := s.opts
	if k > 0 {
		opts.TopK = k
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	raws, err := s.rc.Raw().LRange(ctx, chunkKey(sessionID), 0, -1).Result()
	if err != nil {
		s.log.Warn("chunk query degraded to empty result",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return []Chunk{}, nil
	}

	candidates := make([]Chunk, 0, len(raws))
	for _, raw := range raws {
		var c Chunk
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			continue
		}
		candidates = append(candidates, c)
	}
	return rank(text, candidates, opts), nil
}
