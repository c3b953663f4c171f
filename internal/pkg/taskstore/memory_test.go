package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGetCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	snap := &Snapshot{ID: "t1", SessionID: "sess", Status: StatusQueued}
	require.NoError(t, s.Put(ctx, snap))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	// Mutating the returned copy must not affect the stored snapshot.
	got.Status = StatusFailed
	again, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, again.Status)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Now()
	for i, tc := range []struct {
		id      string
		session string
		status  Status
	}{
		{"t1", "a", StatusCompleted},
		{"t2", "a", StatusRunning},
		{"t3", "b", StatusCompleted},
	} {
		require.NoError(t, s.Put(ctx, &Snapshot{
			ID:        tc.id,
			SessionID: tc.session,
			Status:    tc.status,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, total, err := s.List(ctx, 1, 10, "", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "t3", all[0].ID, "newest first")

	bySession, total, err := s.List(ctx, 1, 10, "a", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, bySession, 2)

	completed := StatusCompleted
	byStatus, total, err := s.List(ctx, 1, 10, "a", &completed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "t1", byStatus[0].ID)

	page2, total, err := s.List(ctx, 2, 2, "", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, page2, 1)

	empty, _, err := s.List(ctx, 5, 10, "", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStoreSessionLock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ok, err := s.AcquireSession(ctx, "sess", "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, s.Put(ctx, &Snapshot{ID: "t1", SessionID: "sess", Status: StatusRunning}))

	ok, err = s.AcquireSession(ctx, "sess", "t2")
	require.NoError(t, err)
	assert.False(t, ok)

	active, err := s.ActiveTask(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "t1", active)

	// Release by a non-holder is a no-op.
	require.NoError(t, s.ReleaseSession(ctx, "sess", "t2"))
	active, err = s.ActiveTask(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "t1", active)

	require.NoError(t, s.ReleaseSession(ctx, "sess", "t1"))
	ok, err = s.AcquireSession(ctx, "sess", "t3")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreSessionLockStaleHolder(t *testing.T) {
	ctx := context.Background()

	t.Run("holder snapshot missing", func(t *testing.T) {
		s := NewMemoryStore()

		ok, err := s.AcquireSession(ctx, "sess", "crashed")
		require.NoError(t, err)
		require.True(t, ok)

		// The holder never wrote a snapshot (process died before Put).
		ok, err = s.AcquireSession(ctx, "sess", "t2")
		require.NoError(t, err)
		assert.True(t, ok, "marker without a live holder must be taken over")

		active, err := s.ActiveTask(ctx, "sess")
		require.NoError(t, err)
		assert.Equal(t, "t2", active)
	})

	t.Run("holder already terminal", func(t *testing.T) {
		s := NewMemoryStore()

		ok, err := s.AcquireSession(ctx, "sess", "t1")
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, s.Put(ctx, &Snapshot{ID: "t1", SessionID: "sess", Status: StatusFailed}))

		// The run goroutine died before releasing; the finished task
		// must not keep the session busy.
		ok, err = s.AcquireSession(ctx, "sess", "t2")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, s.Put(ctx, &Snapshot{ID: "t2", SessionID: "sess", Status: StatusRunning}))
		ok, err = s.AcquireSession(ctx, "sess", "t3")
		require.NoError(t, err)
		assert.False(t, ok, "running holder still blocks the session")
	})
}

func TestMemoryStoreDeleteFinished(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.Put(ctx, &Snapshot{ID: "old-done", Status: StatusCompleted, CreatedAt: old}))
	require.NoError(t, s.Put(ctx, &Snapshot{ID: "old-running", Status: StatusRunning, CreatedAt: old}))
	require.NoError(t, s.Put(ctx, &Snapshot{ID: "new-done", Status: StatusFailed, CreatedAt: time.Now()}))

	removed, err := s.DeleteFinished(ctx, time.Now().Add(-24*time.Hour).UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get(ctx, "old-done")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "old-running")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "new-done")
	assert.NoError(t, err)
}
