package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/result-distribution-api/internal/dto"
	"github.com/noah-isme/result-distribution-api/internal/models"
	"github.com/noah-isme/result-distribution-api/internal/service"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
	"github.com/noah-isme/result-distribution-api/pkg/response"
)

type assignmentService interface {
	Resolve(ctx context.Context, session *models.Session, batchID, programID string) (*models.AssignmentResult, error)
	Unassign(ctx context.Context, session *models.Session, batchID, programID string) (*models.UnassignResult, error)
}

type sheetDownloader interface {
	Download(ctx context.Context, batchID, programID, format string) (*service.SheetFile, error)
}

// AssignmentHandler exposes center assignment endpoints.
type AssignmentHandler struct {
	service assignmentService
	sheets  sheetDownloader
}

// NewAssignmentHandler builds the handler.
func NewAssignmentHandler(svc assignmentService, sheets sheetDownloader) *AssignmentHandler {
	return &AssignmentHandler{service: svc, sheets: sheets}
}

// Resolve godoc
// @Summary Assign students to exam centers
// @Description Places every unassigned active student of the cycle; nothing is placed when seats are insufficient
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body dto.CycleQuery true "Cycle"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Resolve(c *gin.Context) {
	var req dto.CycleQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	res, err := h.service.Resolve(c.Request.Context(), sessionFromContext(c), req.BatchID, req.ProgramID)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if res.Status != models.AssignmentOK {
		status = http.StatusConflict
	}
	response.JSON(c, status, res, nil)
}

// Unassign godoc
// @Summary Clear a cycle's center assignments
// @Tags Assignments
// @Produce json
// @Param batch_id query string true "Batch ID"
// @Param program_id query string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /assignments [delete]
func (h *AssignmentHandler) Unassign(c *gin.Context) {
	var q dto.CycleQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	res, err := h.service.Unassign(c.Request.Context(), sessionFromContext(c), q.BatchID, q.ProgramID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Sheet godoc
// @Summary Download the assignment sheet
// @Tags Assignments
// @Produce text/csv
// @Produce application/pdf
// @Param batch_id query string true "Batch ID"
// @Param program_id query string true "Program ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /assignments/sheet [get]
func (h *AssignmentHandler) Sheet(c *gin.Context) {
	var q dto.SheetQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	if q.BatchID == "" || q.ProgramID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "batch_id and program_id are required"))
		return
	}
	file, err := h.sheets.Download(c.Request.Context(), q.BatchID, q.ProgramID, q.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Name, file.ContentType, file.Data)
}
