package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/result-distribution-api/internal/models"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
	"github.com/noah-isme/result-distribution-api/pkg/jobs"
	"github.com/noah-isme/result-distribution-api/pkg/storage"
)

type stubSheetSource struct {
	rows  []models.SheetRow
	calls atomic.Int32
	err   error
}

func (s *stubSheetSource) SheetRows(ctx context.Context, batchID, programID string) ([]models.SheetRow, error) {
	s.calls.Add(1)
	return s.rows, s.err
}

func newSheetFixture(t *testing.T) (*AssignmentSheetService, *stubSheetSource, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	source := &stubSheetSource{rows: []models.SheetRow{
		{SymbolNumber: "S-01", RegistrationNumber: "R-01", FullName: "Asha Rai", CollegeName: "Central College", CenterCode: "C1", CenterName: "Central College"},
	}}
	return NewAssignmentSheetService(source, store, nil), source, store
}

func TestGenerateStoresEveryFormat(t *testing.T) {
	svc, _, store := newSheetFixture(t)
	require.NoError(t, svc.Generate(context.Background(), "b-2081", "p-bsc"))

	csvData, err := store.Read("center_assignments_b-2081_p-bsc.csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(csvData), "Symbol No.,Registration No.,Name"))
	assert.Contains(t, string(csvData), "S-01,R-01,Asha Rai")

	pdfData, err := store.Read("center_assignments_b-2081_p-bsc.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdfData), "%PDF"))
}

func TestDownloadRendersOnDemand(t *testing.T) {
	svc, source, _ := newSheetFixture(t)

	file, err := svc.Download(context.Background(), "b-2081", "p-bsc", "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "center_assignments_b-2081_p-bsc.csv", file.Name)
	assert.EqualValues(t, 1, source.calls.Load())

	_, err = svc.Download(context.Background(), "b-2081", "p-bsc", "pdf")
	require.NoError(t, err)
	assert.EqualValues(t, 1, source.calls.Load())
}

func TestDownloadRejectsUnknownFormat(t *testing.T) {
	svc, _, _ := newSheetFixture(t)
	_, err := svc.Download(context.Background(), "b-2081", "p-bsc", "xlsx")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestScheduleRunsThroughQueue(t *testing.T) {
	svc, source, store := newSheetFixture(t)
	done := make(chan error, 1)
	queue := jobs.NewQueue("sheets", svc.HandleJob, jobs.QueueConfig{
		Workers:  1,
		OnResult: func(_ jobs.Job, err error) { done <- err },
	})
	queue.Start(context.Background())
	defer queue.Stop()
	svc.UseQueue(queue)

	require.NoError(t, svc.Schedule(context.Background(), "b-2081", "p-bsc"))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sheet job did not finish")
	}
	assert.EqualValues(t, 1, source.calls.Load())
	_, err := store.Read("center_assignments_b-2081_p-bsc.csv")
	assert.NoError(t, err)
}

func TestHandleJobRejectsForeignPayload(t *testing.T) {
	svc, _, _ := newSheetFixture(t)
	err := svc.HandleJob(context.Background(), jobs.Job{ID: "j-1", Payload: "nope"})
	assert.Error(t, err)
}
