package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunAndList(t *testing.T) {
	s := New()

	var mu sync.Mutex
	runs := 0
	s.Register(Job{
		Name:        "purge_finished_tasks",
		Description: "drop old terminal task snapshots",
		Interval:    time.Hour,
		Fn: func(context.Context) error {
			mu.Lock()
			runs++
			mu.Unlock()
			return nil
		},
	})

	items := s.List()
	require.Len(t, items, 1)
	assert.Equal(t, "purge_finished_tasks", items[0].Name)
	assert.Equal(t, StatusIdle, items[0].Status)
	assert.Nil(t, items[0].LastRunAt)

	require.NoError(t, s.Run(context.Background(), "purge_finished_tasks"))
	require.Eventually(t, func() bool {
		it := s.List()[0]
		return it.Status == StatusOK && it.LastRunAt != nil
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, runs)
	mu.Unlock()

	require.Error(t, s.Run(context.Background(), "no_such_job"))
}

func TestSchedulerRecordsFailure(t *testing.T) {
	s := New()
	s.Register(Job{
		Name:     "flaky",
		Interval: time.Hour,
		Fn:       func(context.Context) error { return errors.New("redis gone") },
	})

	require.NoError(t, s.Run(context.Background(), "flaky"))
	require.Eventually(t, func() bool {
		it := s.List()[0]
		return it.Status == StatusError && it.Message == "redis gone"
	}, 2*time.Second, 5*time.Millisecond)
}
