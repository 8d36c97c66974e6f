package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/result-distribution-api/internal/models"
	"github.com/noah-isme/result-distribution-api/internal/service"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
)

type assignmentMock struct {
	result *models.AssignmentResult
	format string
}

func (m *assignmentMock) Resolve(ctx context.Context, session *models.Session, batchID, programID string) (*models.AssignmentResult, error) {
	return m.result, nil
}

func (m *assignmentMock) Unassign(ctx context.Context, session *models.Session, batchID, programID string) (*models.UnassignResult, error) {
	return &models.UnassignResult{Cleared: 2, Released: map[string]int{"c-1": 2}}, nil
}

func (m *assignmentMock) Download(ctx context.Context, batchID, programID, format string) (*service.SheetFile, error) {
	m.format = format
	if format == "xlsx" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	return &service.SheetFile{Name: "sheet.csv", ContentType: "text/csv", Data: []byte("a,b\n")}, nil
}

func TestAssignmentHandlerResolveStatuses(t *testing.T) {
	mock := &assignmentMock{result: &models.AssignmentResult{Status: models.AssignmentOK}}
	h := NewAssignmentHandler(mock, mock)

	c, w := jsonContext(http.MethodPost, "/assignments", `{"batch_id":"b","program_id":"p"}`)
	h.Resolve(c)
	assert.Equal(t, http.StatusOK, w.Code)

	mock.result = &models.AssignmentResult{Status: models.AssignmentInsufficientCapacity, Unplaced: []string{"st-1"}}
	c, w = jsonContext(http.MethodPost, "/assignments", `{"batch_id":"b","program_id":"p"}`)
	h.Resolve(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"insufficient_capacity"`)
}

func TestAssignmentHandlerUnassign(t *testing.T) {
	mock := &assignmentMock{}
	h := NewAssignmentHandler(mock, mock)

	c, w := jsonContext(http.MethodDelete, "/assignments?batch_id=b&program_id=p", "")
	h.Unassign(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cleared":2`)
}

func TestAssignmentHandlerSheet(t *testing.T) {
	mock := &assignmentMock{}
	h := NewAssignmentHandler(mock, mock)

	c, w := jsonContext(http.MethodGet, "/assignments/sheet?batch_id=b&program_id=p", "")
	h.Sheet(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "sheet.csv")

	c, w = jsonContext(http.MethodGet, "/assignments/sheet?batch_id=b", "")
	h.Sheet(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = jsonContext(http.MethodGet, "/assignments/sheet?batch_id=b&program_id=p&format=xlsx", "")
	h.Sheet(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
