package artifact

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/studycompanion/core/internal/pkg/response"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth gin.HandlerFunc) {
	notes := r.Group("/notes")
	notes.Use(auth)
	{
		notes.GET("/:id", h.get)
	}

	sessions := r.Group("/sessions")
	sessions.Use(auth)
	{
		sessions.GET("/:id/notes/current", h.current)
		sessions.GET("/:id/notes/history", h.history)
		sessions.POST("/:id/notes/revert", h.revert)
	}
}

func (h *Handler) get(c *gin.Context) {
	doc, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		response.NotFoundMsg(c, "note document not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, doc)
}

func (h *Handler) current(c *gin.Context) {
	doc, err := h.store.Current(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		response.NotFoundMsg(c, "session has no current note")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, doc)
}

func (h *Handler) history(c *gin.Context) {
	entries, err := h.store.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	response.OK(c, entries)
}

type revertRequest struct {
	NoteDocID string `json:"note_doc_id" binding:"required"`
}

func (h *Handler) revert(c *gin.Context) {
	var req revertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "note_doc_id is required")
		return
	}

	doc, err := h.store.Revert(c.Request.Context(), c.Param("id"), req.NoteDocID)
	if errors.Is(err, ErrNotFound) {
		response.NotFoundMsg(c, "note document is not in the retained history")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, doc)
}
