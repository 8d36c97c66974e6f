package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/result-distribution-api/internal/dto"
	"github.com/noah-isme/result-distribution-api/internal/models"
	"github.com/noah-isme/result-distribution-api/internal/service"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
	"github.com/noah-isme/result-distribution-api/pkg/querygraph"
	"github.com/noah-isme/result-distribution-api/pkg/response"
)

type catalogResolver interface {
	Resolve(ctx context.Context, prev, next querygraph.State) (*models.CatalogView, error)
}

// CatalogHandler serves the program, semester and course lookups.
type CatalogHandler struct {
	service catalogResolver
}

// NewCatalogHandler builds the handler.
func NewCatalogHandler(svc catalogResolver) *CatalogHandler {
	return &CatalogHandler{service: svc}
}

// Resolve godoc
// @Summary Resolve catalog lookups
// @Description Returns programs, and semesters or courses when program_id and semester_id are given. Passing prev_program_id or prev_semester_id re-runs only the lookups whose parameters changed.
// @Tags Catalog
// @Produce json
// @Param program_id query string false "Program ID"
// @Param semester_id query string false "Semester ID"
// @Param prev_program_id query string false "Program ID of the previous request"
// @Param prev_semester_id query string false "Semester ID of the previous request"
// @Success 200 {object} response.Envelope
// @Router /catalog [get]
func (h *CatalogHandler) Resolve(c *gin.Context) {
	var q dto.CatalogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	next := querygraph.State{service.StateProgramID: q.ProgramID, service.StateSemesterID: q.SemesterID}

	var prev querygraph.State
	_, hasPrevProgram := c.GetQuery("prev_program_id")
	_, hasPrevSemester := c.GetQuery("prev_semester_id")
	if hasPrevProgram || hasPrevSemester {
		prev = querygraph.State{service.StateProgramID: q.PrevProgramID, service.StateSemesterID: q.PrevSemesterID}
	}

	view, err := h.service.Resolve(c.Request.Context(), prev, next)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
