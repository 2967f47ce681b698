package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/service"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
	"github.com/clinsight/ctr-registry-api/pkg/response"
)

// TextElementHandler exposes dictionary endpoints.
type TextElementHandler struct {
	elements *service.TextElementService
}

// NewTextElementHandler constructs TextElementHandler.
func NewTextElementHandler(elements *service.TextElementService) *TextElementHandler {
	return &TextElementHandler{elements: elements}
}

func (h *TextElementHandler) List(c *gin.Context) {
	elements, err := h.elements.List(c.Request.Context(), c.Query("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, elements, nil)
}

func (h *TextElementHandler) Get(c *gin.Context) {
	element, err := h.elements.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, element, nil)
}

func (h *TextElementHandler) Create(c *gin.Context) {
	var req dto.CreateTextElementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	element, err := h.elements.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, element)
}

func (h *TextElementHandler) Update(c *gin.Context) {
	var req dto.UpdateTextElementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	element, err := h.elements.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, element, nil)
}
