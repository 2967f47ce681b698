package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/service"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
	"github.com/clinsight/ctr-registry-api/pkg/response"
)

// StudyHandler exposes study endpoints.
type StudyHandler struct {
	studies *service.StudyService
}

// NewStudyHandler constructs StudyHandler.
func NewStudyHandler(studies *service.StudyService) *StudyHandler {
	return &StudyHandler{studies: studies}
}

func (h *StudyHandler) List(c *gin.Context) {
	studies, err := h.studies.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, studies, nil)
}

func (h *StudyHandler) Get(c *gin.Context) {
	study, err := h.studies.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, study, nil)
}

func (h *StudyHandler) Create(c *gin.Context) {
	var req dto.CreateStudyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	study, err := h.studies.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, study)
}

func (h *StudyHandler) Update(c *gin.Context) {
	var req dto.UpdateStudyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	study, err := h.studies.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, study, nil)
}
