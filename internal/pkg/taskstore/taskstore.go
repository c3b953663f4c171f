// Package taskstore persists note-generation task snapshots so task
// state survives process restarts and is queryable across the API.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redisc "github.com/studycompanion/core/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// Status represents the lifecycle state of a generation task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Snapshot is the durable record of one note-generation task.
type Snapshot struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Status         Status    `json:"status"`
	DetailLevel    string    `json:"detail_level"`
	Difficulty     string    `json:"difficulty"`
	Language       string    `json:"language"`
	Progress       int       `json:"progress"` // 0-100
	TotalSections  int       `json:"total_sections"`
	CurrentSection string    `json:"current_section,omitempty"`
	Message        string    `json:"message,omitempty"`
	Error          string    `json:"error,omitempty"`
	NoteDocID      string    `json:"note_doc_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ErrNotFound is returned when a task snapshot does not exist.
var ErrNotFound = errors.New("task not found")

// Store persists task snapshots and enforces the one-active-task-per-session rule.
type Store interface {
	Put(ctx context.Context, snap *Snapshot) error
	Get(ctx context.Context, id string) (*Snapshot, error)
	// Delete removes a single snapshot regardless of its status.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, page, size int, sessionID string, status *Status) ([]*Snapshot, int64, error)
	// AcquireSession registers taskID as the session's active task.
	// It returns false when another task already holds the session.
	AcquireSession(ctx context.Context, sessionID, taskID string) (bool, error)
	// ReleaseSession clears the active marker if taskID still holds it.
	ReleaseSession(ctx context.Context, sessionID, taskID string) error
	// ActiveTask returns the task currently holding the session, or "".
	ActiveTask(ctx context.Context, sessionID string) (string, error)
	// DeleteFinished removes terminal tasks created before beforeMS
	// (Unix millis; 0 means all terminal tasks). Returns removed count.
	DeleteFinished(ctx context.Context, beforeMS int64) (int, error)
}

const (
	keyPrefix = "sc:task:"
	keyIndex  = "sc:tasks:index"  // sorted set: score=created_at ms, member=task_id
	keyActive = "sc:tasks:active" // hash: session_id -> task_id
	taskTTL   = 7 * 24 * time.Hour
)

// RedisStore keeps snapshots in Redis with a sorted-set index.
type RedisStore struct {
	rc *redisc.Client
}

func NewRedisStore(rc *redisc.Client) *RedisStore {
	return &RedisStore{rc: rc}
}

func taskKey(id string) string { return keyPrefix + id }

func (s *RedisStore) Put(ctx context.Context, snap *Snapshot) error {
	snap.UpdatedAt = time.Now()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = snap.UpdatedAt
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, taskKey(snap.ID), data, taskTTL)
	pipe.ZAdd(ctx, keyIndex, redis.Z{
		Score:  float64(snap.CreatedAt.UnixMilli()),
		Member: snap.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	data, err := s.rc.Raw().Get(ctx, taskKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	return &snap, json.Unmarshal(data, &snap)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.rc.Raw().TxPipeline()
	pipe.Del(ctx, taskKey(id))
	pipe.ZRem(ctx, keyIndex, id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) List(ctx context.Context, page, size int, sessionID string, status *Status) ([]*Snapshot, int64, error) {
	ids, err := s.rc.Raw().ZRevRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}

	var snaps []*Snapshot
	for _, id := range ids {
		snap, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		if sessionID != "" && snap.SessionID != sessionID {
			continue
		}
		if status != nil && snap.Status != *status {
			continue
		}
		snaps = append(snaps, snap)
	}

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

func (s *RedisStore) AcquireSession(ctx context.Context, sessionID, taskID string) (bool, error) {
	ok, err := s.rc.Raw().HSetNX(ctx, keyActive, sessionID, taskID).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	// The marker has no TTL, so a crash between Submit and the run
	// goroutine's release would wedge the session forever. Steal the
	// slot when the holder's snapshot is gone or already terminal.
	holder, err := s.rc.Raw().HGet(ctx, keyActive, sessionID).Result()
	if err == redis.Nil {
		ok, err = s.rc.Raw().HSetNX(ctx, keyActive, sessionID, taskID).Result()
		return ok, err
	}
	if err != nil {
		return false, err
	}
	if stale, err := s.holderStale(ctx, holder); err != nil || !stale {
		return false, err
	}
	return true, s.rc.Raw().HSet(ctx, keyActive, sessionID, taskID).Err()
}

func (s *RedisStore) holderStale(ctx context.Context, holder string) (bool, error) {
	snap, err := s.Get(ctx, holder)
	if err == ErrNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return snap.Status.Terminal(), nil
}

func (s *RedisStore) ReleaseSession(ctx context.Context, sessionID, taskID string) error {
	holder, err := s.rc.Raw().HGet(ctx, keyActive, sessionID).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if holder != taskID {
		return nil
	}
	return s.rc.Raw().HDel(ctx, keyActive, sessionID).Err()
}

func (s *RedisStore) ActiveTask(ctx context.Context, sessionID string) (string, error) {
	taskID, err := s.rc.Raw().HGet(ctx, keyActive, sessionID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return taskID, nil
}

func (s *RedisStore) DeleteFinished(ctx context.Context, beforeMS int64) (int, error) {
	ids, err := s.rc.Raw().ZRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	removed := 0
	pipe := s.rc.Raw().TxPipeline()
	for _, id := range ids {
		snap, err := s.Get(ctx, id)
		if err != nil {
			pipe.ZRem(ctx, keyIndex, id)
			continue
		}
		if !snap.Status.Terminal() {
			continue
		}
		if beforeMS > 0 && snap.CreatedAt.UnixMilli() >= beforeMS {
			continue
		}
		pipe.Del(ctx, taskKey(id))
		pipe.ZRem(ctx, keyIndex, id)
		removed++
	}
	_, err = pipe.Exec(ctx)
	return removed, err
}
