package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/result-distribution-api/internal/dto"
	"github.com/noah-isme/result-distribution-api/internal/models"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
	"github.com/noah-isme/result-distribution-api/pkg/response"
)

type collegeService interface {
	Import(ctx context.Context, session *models.Session, body io.Reader) (*models.CollegeImportResult, error)
	NearbyCenters(ctx context.Context, collegeID string, radiusKm float64) ([]models.NearbyCenter, error)
}

// CollegeHandler exposes college roster endpoints.
type CollegeHandler struct {
	service     collegeService
	maxFileSize int64
}

// NewCollegeHandler builds the handler.
func NewCollegeHandler(svc collegeService, maxFileSize int64) *CollegeHandler {
	if maxFileSize <= 0 {
		maxFileSize = 5 * 1024 * 1024
	}
	return &CollegeHandler{service: svc, maxFileSize: maxFileSize}
}

// Import godoc
// @Summary Import colleges
// @Description TSV or CSV with college_code, college_name, address, latitude, longitude
// @Tags Colleges
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "College roster"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /colleges/import [post]
func (h *CollegeHandler) Import(c *gin.Context) {
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
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	res, err := h.service.Import(c.Request.Context(), sessionFromContext(c), src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// NearbyCenters godoc
// @Summary Exam centers near a college
// @Tags Colleges
// @Produce json
// @Param id path string true "College ID"
// @Param radius_km query number false "Search radius in km"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /colleges/{id}/nearby-centers [get]
func (h *CollegeHandler) NearbyCenters(c *gin.Context) {
	var q dto.NearbyCentersQuery
	if err := c.ShouldBindQuery(&q); err != nil || q.RadiusKm < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "radius_km must be a positive number"))
		return
	}
	centers, err := h.service.NearbyCenters(c.Request.Context(), c.Param("id"), q.RadiusKm)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, centers, nil, map[string]interface{}{"count": len(centers)})
}
