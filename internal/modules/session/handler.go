package session

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/studycompanion/core/internal/modules/outline"
	"github.com/studycompanion/core/internal/modules/retrieval"
	"github.com/studycompanion/core/internal/pkg/pagination"
	"github.com/studycompanion/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth gin.HandlerFunc) {
	sessions := r.Group("/sessions")
	sessions.Use(auth)
	{
		sessions.POST("", h.create)
		sessions.GET("", h.list)
		sessions.GET("/:id", h.get)
		sessions.DELETE("/:id", h.archive)
		sessions.PUT("/:id/outline", h.putOutline)
		sessions.GET("/:id/outline", h.getOutline)
		sessions.PUT("/:id/chunks", h.putChunks)
	}
}

type createRequest struct {
	Title    string `json:"title" binding:"required"`
	Language string `json:"language"`
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "title is required")
		return
	}
	sess, err := h.svc.Create(c.Request.Context(), req.Title, req.Language)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, sess)
}

func (h *Handler) list(c *gin.Context) {
	sessions, meta, err := h.svc.List(c.Request.Context(), pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, sessions, meta)
}

func (h *Handler) get(c *gin.Context) {
	sess, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrSessionNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, sess)
}

func (h *Handler) archive(c *gin.Context) {
	err := h.svc.Archive(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrSessionNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) putOutline(c *gin.Context) {
	var root outline.Node
	if err := c.ShouldBindJSON(&root); err != nil {
		response.BadRequest(c, "invalid outline payload")
		return
	}

	tree, version, err := h.svc.PutOutline(c.Request.Context(), c.Param("id"), &root)
	if errors.Is(err, ErrSessionNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.UnprocessableEntity(c, err.Error())
		return
	}
	response.OK(c, gin.H{
		"version":  version,
		"nodes":    tree.Len(),
		"sections": len(tree.Sections()),
	})
}

func (h *Handler) getOutline(c *gin.Context) {
	tree, err := h.svc.LoadTree(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNoOutline) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, tree.Root())
}

type chunksRequest struct {
	Chunks []retrieval.Chunk `json:"chunks" binding:"required"`
}

func (h *Handler) putChunks(c *gin.Context) {
	var req chunksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "chunks are required")
		return
	}

	count, err := h.svc.IngestChunks(c.Request.Context(), c.Param("id"), req.Chunks)
	if errors.Is(err, ErrSessionNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"chunk_count": count})
}
