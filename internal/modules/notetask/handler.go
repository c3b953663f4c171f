package notetask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studycompanion/core/internal/modules/outline"
	"github.com/studycompanion/core/internal/modules/style"
	"github.com/studycompanion/core/internal/pkg/pagination"
	"github.com/studycompanion/core/internal/pkg/response"
	"github.com/studycompanion/core/internal/pkg/taskstore"
)

// OutlineLoader resolves a session's stored outline tree.
type OutlineLoader interface {
	LoadTree(ctx context.Context, sessionID string) (*outline.Tree, error)
}

// Handler exposes the task control surface.
type Handler struct {
	orch     *Orchestrator
	outlines OutlineLoader
}

func NewHandler(orch *Orchestrator, outlines OutlineLoader) *Handler {
	return &Handler{orch: orch, outlines: outlines}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth gin.HandlerFunc) {
	notes := r.Group("/notes")
	notes.Use(auth)
	{
		notes.POST("/generate", h.generate)

		tasks := notes.Group("/tasks")
		tasks.GET("", h.list)
		tasks.GET("/:id", h.get)
		tasks.GET("/:id/stream", h.stream)
		tasks.POST("/:id/cancel", h.cancel)
		tasks.DELETE("", h.cleanup)
	}
}

type generateRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Style     struct {
		DetailLevel string `json:"detail_level" binding:"required"`
		Difficulty  string `json:"difficulty"   binding:"required"`
	} `json:"style" binding:"required"`
	Language string `json:"language"`
}

func (h *Handler) generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "session_id and style{detail_level, difficulty} are required")
		return
	}

	tree, err := h.outlines.LoadTree(c.Request.Context(), req.SessionID)
	if err != nil {
		response.NotFoundMsg(c, "session has no outline: "+err.Error())
		return
	}

	taskID, err := h.orch.Submit(
		c.Request.Context(),
		req.SessionID,
		tree,
		style.DetailLevel(strings.TrimSpace(req.Style.DetailLevel)),
		style.Difficulty(strings.TrimSpace(req.Style.Difficulty)),
		strings.TrimSpace(req.Language),
	)
	switch {
	case errors.Is(err, style.ErrInvalidStyle):
		response.BadRequest(c, err.Error())
		return
	case errors.Is(err, ErrSessionBusy):
		response.Conflict(c, err.Error())
		return
	case err != nil:
		response.InternalError(c, err)
		return
	}

	response.Created(c, gin.H{"task_id": taskID})
}

func (h *Handler) get(c *gin.Context) {
	snap, err := h.orch.Poll(c.Request.Context(), c.Param("id"))
	if errors.Is(err, taskstore.ErrNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, snap)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	sessionID := c.Query("session_id")

	var status *taskstore.Status
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		s := taskstore.Status(raw)
		status = &s
	}

	snaps, total, err := h.orch.List(c.Request.Context(), q.Page, q.Size, sessionID, status)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, snaps, pagination.Meta(q, total))
}

func (h *Handler) cancel(c *gin.Context) {
	err := h.orch.Cancel(c.Param("id"))
	if errors.Is(err, ErrTaskNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.Conflict(c, err.Error())
		return
	}
	response.OK(c, gin.H{"cancelling": true})
}

// cleanup drops finished tasks older than older_than_days (0 = all
// finished tasks).
func (h *Handler) cleanup(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("older_than_days", "0"))
	if err != nil || days < 0 {
		response.BadRequest(c, "older_than_days must be a non-negative integer")
		return
	}

	removed, err := h.orch.PurgeFinished(c.Request.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"removed": removed})
}

// stream sends the task's event sequence over SSE: a snapshot frame
// first, then live events through the terminal one. Closing the
// connection never cancels the task.
func (h *Handler) stream(c *gin.Context) {
	taskID := c.Param("id")

	// Attach before polling so nothing can slip between the snapshot
	// and the live stream. The subscription replays the task's full
	// history; frames the snapshot already covers are dropped below so
	// each client observes non-decreasing progress.
	events, detach, subErr := h.orch.Subscribe(taskID)
	if subErr == nil {
		defer detach()
	}

	snap, err := h.orch.Poll(c.Request.Context(), taskID)
	if errors.Is(err, taskstore.ErrNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(eventType string, payload interface{}) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", fmt.Sprintf(`{"type":%q,"data":%s}`, eventType, data))
		c.Writer.Flush()
	}

	sendEvent("snapshot", snap)
	if snap.Status.Terminal() || subErr != nil {
		// Already finished, or dropped from memory after finishing.
		sendEvent("done", nil)
		return
	}

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case ev, ok := <-events:
			if !ok {
				sendEvent("done", nil)
				return
			}
			if !ev.Terminal && ev.Progress < snap.Progress {
				// Replayed history from before the snapshot.
				continue
			}
			sendEvent("progress", ev)
			if ev.Terminal {
				sendEvent("done", nil)
				return
			}
		}
	}
}
