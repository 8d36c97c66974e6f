package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/result-distribution-api/internal/dto"
	"github.com/noah-isme/result-distribution-api/internal/models"
	"github.com/noah-isme/result-distribution-api/internal/service"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
	"github.com/noah-isme/result-distribution-api/pkg/response"
)

type studentImportService interface {
	Import(ctx context.Context, session *models.Session, req service.ImportRequest) (*models.ImportResult, error)
	BulkImport(ctx context.Context, session *models.Session, req dto.BulkImportRequest) (*models.ImportResult, error)
	GetOperation(ctx context.Context, id string) (*models.ImportOperation, error)
}

// ImportHandler exposes roster import endpoints.
type ImportHandler struct {
	service     studentImportService
	maxFileSize int64
}

// NewImportHandler builds the handler. maxFileSize bounds multipart uploads in bytes.
func NewImportHandler(svc studentImportService, maxFileSize int64) *ImportHandler {
	if maxFileSize <= 0 {
		maxFileSize = 5 * 1024 * 1024
	}
	return &ImportHandler{service: svc, maxFileSize: maxFileSize}
}

// Import godoc
// @Summary Import a student roster
// @Description Accepts a CSV or TSV file with full_name, symbol_number, registration_number and optional college columns
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param batch_id formData string true "Batch ID"
// @Param program_id formData string true "Program ID"
// @Param file formData file true "Roster file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /students/import [post]
func (h *ImportHandler) Import(c *gin.Context) {
	// multipart framing needs a little headroom over the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+64*1024)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.ErrPayloadTooLarge)
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	if fileHeader.Size > h.maxFileSize {
		response.Error(c, appErrors.ErrPayloadTooLarge)
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	req := service.ImportRequest{
		BatchID:   strings.TrimSpace(c.PostForm("batch_id")),
		ProgramID: strings.TrimSpace(c.PostForm("program_id")),
		FileName:  fileHeader.Filename,
		Body:      src,
	}
	res, err := h.service.Import(c.Request.Context(), sessionFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Bulk godoc
// @Summary Enroll students from JSON
// @Tags Imports
// @Accept json
// @Produce json
// @Param payload body dto.BulkImportRequest true "Students"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/bulk [post]
func (h *ImportHandler) Bulk(c *gin.Context) {
	var req dto.BulkImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	res, err := h.service.BulkImport(c.Request.Context(), sessionFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// GetOperation godoc
// @Summary Get an import operation log
// @Tags Imports
// @Produce json
// @Param id path string true "Operation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /imports/{id} [get]
func (h *ImportHandler) GetOperation(c *gin.Context) {
	op, err := h.service.GetOperation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, op, nil)
}
