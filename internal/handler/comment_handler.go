package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/service"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
	"github.com/clinsight/ctr-registry-api/pkg/response"
)

// CommentHandler exposes tracker comment endpoints.
type CommentHandler struct {
	comments *service.CommentService
}

// NewCommentHandler constructs CommentHandler.
func NewCommentHandler(comments *service.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

// ListByTracker returns the tracker's comment threads.
func (h *CommentHandler) ListByTracker(c *gin.Context) {
	threads, err := h.comments.ListThread(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, threads, nil)
}

func (h *CommentHandler) Create(c *gin.Context) {
	var req dto.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	comment, err := h.comments.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

func (h *CommentHandler) Resolve(c *gin.Context) {
	comment, err := h.comments.Resolve(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comment, nil)
}

func (h *CommentHandler) Unresolve(c *gin.Context) {
	comment, err := h.comments.Unresolve(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comment, nil)
}

func (h *CommentHandler) Delete(c *gin.Context) {
	if err := h.comments.SoftDelete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
