package notetask

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studycompanion/core/internal/modules/outline"
	"github.com/studycompanion/core/internal/modules/style"
)

type stubOutlines struct{ tree *outline.Tree }

func (s *stubOutlines) LoadTree(context.Context, string) (*outline.Tree, error) {
	return s.tree, nil
}

func newTaskServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(f.orch, &stubOutlines{tree: threeNodeTree(t)})
	h.RegisterRoutes(r.Group("/api/v1"), func(c *gin.Context) { c.Next() })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

type sseFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, sc *bufio.Scanner) sseFrame {
	t.Helper()
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), "unexpected SSE line %q", line)
		var frame sseFrame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		return frame
	}
	t.Fatalf("stream ended early: %v", sc.Err())
	return sseFrame{}
}

func openStream(t *testing.T, srv *httptest.Server, taskID string) *http.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/notes/tasks/"+taskID+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// A client that attaches mid-task gets a snapshot first; nothing sent
// after it may carry lower progress, even though the subscription
// replays the task's history from the start.
func TestStreamMidTaskProgressNeverRewinds(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(&stubGenerator{gate: gate})
	srv := newTaskServer(t, f)

	taskID, err := f.orch.Submit(context.Background(), "sess", threeNodeTree(t), style.DetailBrief, style.DifficultyPopular, "en")
	require.NoError(t, err)

	// Let two of three sections finish before the client shows up.
	gate <- struct{}{}
	gate <- struct{}{}
	require.Eventually(t, func() bool {
		snap, err := f.orch.Poll(context.Background(), taskID)
		return err == nil && snap.Progress == 66
	}, 5*time.Second, 5*time.Millisecond)

	resp := openStream(t, srv, taskID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sc := bufio.NewScanner(resp.Body)

	first := readFrame(t, sc)
	require.Equal(t, "snapshot", first.Type)
	var snap struct {
		Progress int `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(first.Data, &snap))
	require.Equal(t, 66, snap.Progress)

	// Release the last section only after the client is attached.
	close(gate)

	prev := snap.Progress
	sawTerminal := false
	for {
		frame := readFrame(t, sc)
		if frame.Type == "done" {
			break
		}
		require.Equal(t, "progress", frame.Type)
		var ev Event
		require.NoError(t, json.Unmarshal(frame.Data, &ev))
		assert.GreaterOrEqual(t, ev.Progress, prev, "frame after the snapshot rewinds progress")
		prev = ev.Progress
		if ev.Terminal {
			sawTerminal = true
		}
	}
	assert.True(t, sawTerminal)
	assert.Equal(t, 100, prev)
}

func TestStreamFinishedTask(t *testing.T) {
	f := newFixture(&stubGenerator{})
	srv := newTaskServer(t, f)

	taskID, err := f.orch.Submit(context.Background(), "sess", threeNodeTree(t), style.DetailBrief, style.DifficultyPopular, "en")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err := f.orch.Poll(context.Background(), taskID)
		return err == nil && snap.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)

	resp := openStream(t, srv, taskID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sc := bufio.NewScanner(resp.Body)

	first := readFrame(t, sc)
	assert.Equal(t, "snapshot", first.Type)
	assert.Equal(t, "done", readFrame(t, sc).Type)
}

func TestStreamUnknownTask(t *testing.T) {
	f := newFixture(&stubGenerator{})
	srv := newTaskServer(t, f)

	resp := openStream(t, srv, "nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
