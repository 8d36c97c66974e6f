package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/result-distribution-api/internal/dto"
	"github.com/noah-isme/result-distribution-api/internal/models"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
	"github.com/noah-isme/result-distribution-api/pkg/response"
)

type capacityLedger interface {
	DeclareCapacity(ctx context.Context, session *models.Session, key models.CenterKey, capacity int) (*models.CenterCapacity, error)
	Allocate(ctx context.Context, session *models.Session, key models.CenterKey, count int) (*models.CenterCapacity, error)
	Release(ctx context.Context, session *models.Session, key models.CenterKey, count int) (*models.CenterCapacity, error)
	List(ctx context.Context, batchID, programID string) ([]models.CenterCapacity, error)
}

type centerDeclarer interface {
	DeclareBulk(ctx context.Context, session *models.Session, req dto.BulkCapacityRequest) (*models.CapacityDeclarationResult, error)
	DeclareUpload(ctx context.Context, session *models.Session, batchID, programID string, body io.Reader) (*models.CapacityDeclarationResult, error)
}

// CenterHandler exposes the exam center capacity ledger.
type CenterHandler struct {
	ledger       capacityLedger
	declarations centerDeclarer
	maxFileSize  int64
}

// NewCenterHandler builds the handler. maxFileSize bounds multipart capacity uploads in bytes.
func NewCenterHandler(ledger capacityLedger, declarations centerDeclarer, maxFileSize int64) *CenterHandler {
	if maxFileSize <= 0 {
		maxFileSize = 5 * 1024 * 1024
	}
	return &CenterHandler{ledger: ledger, declarations: declarations, maxFileSize: maxFileSize}
}

// DeclareCapacity godoc
// @Summary Declare center capacity
// @Description Sets the seats a college offers as an exam center for a batch and program
// @Tags Centers
// @Accept json
// @Produce json
// @Param payload body dto.DeclareCapacityRequest true "Capacity"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /centers/capacity [put]
func (h *CenterHandler) DeclareCapacity(c *gin.Context) {
	var req dto.DeclareCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.Capacity == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "capacity is required"))
		return
	}
	key := models.CenterKey{CollegeID: req.CenterID, BatchID: req.BatchID, ProgramID: req.ProgramID}
	row, err := h.ledger.DeclareCapacity(c.Request.Context(), sessionFromContext(c), key, *req.Capacity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// DeclareBulk godoc
// @Summary Declare centers and capacities in bulk
// @Description Accepts a JSON body of records, or a multipart CSV or TSV file with college, is_center and capacity columns
// @Tags Centers
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Param payload body dto.BulkCapacityRequest false "Records"
// @Param batch_id formData string false "Batch ID"
// @Param program_id formData string false "Program ID"
// @Param file formData file false "Capacity file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /centers/capacity/bulk [post]
func (h *CenterHandler) DeclareBulk(c *gin.Context) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req dto.BulkCapacityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
		res, err := h.declarations.DeclareBulk(c.Request.Context(), sessionFromContext(c), req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, res, nil)
		return
	}

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

	res, err := h.declarations.DeclareUpload(c.Request.Context(), sessionFromContext(c),
		strings.TrimSpace(c.PostForm("batch_id")), strings.TrimSpace(c.PostForm("program_id")), src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// List godoc
// @Summary List center capacity for a cycle
// @Tags Centers
// @Produce json
// @Param batch_id query string true "Batch ID"
// @Param program_id query string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /centers [get]
func (h *CenterHandler) List(c *gin.Context) {
	var q dto.CycleQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	rows, err := h.ledger.List(c.Request.Context(), q.BatchID, q.ProgramID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Allocate godoc
// @Summary Allocate seats at a center
// @Tags Centers
// @Accept json
// @Produce json
// @Param payload body dto.SeatRequest true "Seats"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /centers/allocate [post]
func (h *CenterHandler) Allocate(c *gin.Context) {
	h.seats(c, h.ledger.Allocate)
}

// Release godoc
// @Summary Release seats at a center
// @Tags Centers
// @Accept json
// @Produce json
// @Param payload body dto.SeatRequest true "Seats"
// @Success 200 {object} response.Envelope
// @Router /centers/release [post]
func (h *CenterHandler) Release(c *gin.Context) {
	h.seats(c, h.ledger.Release)
}

type seatOp func(ctx context.Context, session *models.Session, key models.CenterKey, count int) (*models.CenterCapacity, error)

func (h *CenterHandler) seats(c *gin.Context, op seatOp) {
	var req dto.SeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	key := models.CenterKey{CollegeID: req.CenterID, BatchID: req.BatchID, ProgramID: req.ProgramID}
	row, err := op(c.Request.Context(), sessionFromContext(c), key, req.Count)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "ok", "center": row}, nil)
}
