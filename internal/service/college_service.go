package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/result-distribution-api/internal/models"
	"github.com/noah-isme/result-distribution-api/internal/repository"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
	"github.com/noah-isme/result-distribution-api/pkg/geo"
	"github.com/noah-isme/result-distribution-api/pkg/tabular"
)

// CollegeRosterSchema describes the columns of a college upload.
var CollegeRosterSchema = tabular.Schema{
	Columns:  []string{"college_code", "college_name", "address", "latitude", "longitude"},
	Required: []string{"college_code", "college_name"},
}

// DefaultNearbyRadiusKm is used when neither the caller nor configuration sets a radius.
const DefaultNearbyRadiusKm = 50

type collegeStore interface {
	FindByID(ctx context.Context, id string) (*models.College, error)
	Create(ctx context.Context, college *models.College) error
	ListCenters(ctx context.Context) ([]models.College, error)
}

// CollegeService manages affiliated colleges and center lookups.
type CollegeService struct {
	colleges      collegeStore
	audit         auditRecorder
	logger        *zap.Logger
	defaultRadius float64
}

// NewCollegeService constructs the service.
func NewCollegeService(colleges collegeStore, audit auditRecorder, logger *zap.Logger, defaultRadiusKm float64) *CollegeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultRadiusKm <= 0 {
		defaultRadiusKm = DefaultNearbyRadiusKm
	}
	return &CollegeService{colleges: colleges, audit: audit, logger: logger, defaultRadius: defaultRadiusKm}
}

// Import creates colleges from an uploaded roster. Rows with a duplicate or invalid code are
// skipped and reported; the rest are created.
func (s *CollegeService) Import(ctx context.Context, session *models.Session, body io.Reader) (*models.CollegeImportResult, error) {
	reader, err := tabular.NewReader(body, CollegeRosterSchema, tabular.Options{})
	if err != nil {
		return nil, malformed(err)
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, malformed(err)
	}

	result := &models.CollegeImportResult{TotalRows: len(rows), Skipped: []models.CollegeRejection{}}
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		college, reason := collegeFromRow(row)
		if reason != "" {
			result.Skipped = append(result.Skipped, models.CollegeRejection{RowIndex: row.Index, Code: college.Code, Reason: reason})
			continue
		}
		if _, dup := seen[college.Code]; dup {
			result.Skipped = append(result.Skipped, models.CollegeRejection{RowIndex: row.Index, Code: college.Code, Reason: "duplicate college_code in upload"})
			continue
		}

		err := s.colleges.Create(ctx, college)
		switch {
		case err == nil:
			seen[college.Code] = struct{}{}
			result.CreatedCount++
		case errors.Is(err, repository.ErrDuplicateCollegeCode):
			result.Skipped = append(result.Skipped, models.CollegeRejection{RowIndex: row.Index, Code: college.Code, Reason: "college_code already exists"})
		default:
			return nil, storageError(err, "failed to create college")
		}
	}

	recordAudit(ctx, s.audit, s.logger, session, models.AuditActionCollegeImport, "college", "", map[string]interface{}{
		"total_rows":    result.TotalRows,
		"created_count": result.CreatedCount,
		"skipped_count": len(result.Skipped),
	})
	s.logger.Info("college import finished", zap.Int("total_rows", result.TotalRows), zap.Int("created", result.CreatedCount), zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

// NearbyCenters lists exam centers within radiusKm of the college, nearest first. A
// non-positive radius falls back to the configured default.
func (s *CollegeService) NearbyCenters(ctx context.Context, collegeID string, radiusKm float64) ([]models.NearbyCenter, error) {
	if radiusKm <= 0 {
		radiusKm = s.defaultRadius
	}
	origin, err := s.colleges.FindByID(ctx, collegeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "college not found")
		}
		return nil, storageError(err, "failed to load college")
	}
	from := geo.Point{Lat: origin.Latitude, Lon: origin.Longitude}
	if !from.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "college has no valid coordinates")
	}

	centers, err := s.colleges.ListCenters(ctx)
	if err != nil {
		return nil, storageError(err, "failed to list centers")
	}
	nearby := make([]models.NearbyCenter, 0)
	for _, c := range centers {
		if c.ID == origin.ID {
			continue
		}
		to := geo.Point{Lat: c.Latitude, Lon: c.Longitude}
		if !to.Valid() {
			continue
		}
		d := geo.DistanceKm(from, to)
		if d <= radiusKm {
			nearby = append(nearby, models.NearbyCenter{College: c, DistanceKm: d})
		}
	}
	sort.SliceStable(nearby, func(i, j int) bool { return nearby[i].DistanceKm < nearby[j].DistanceKm })
	return nearby, nil
}

func collegeFromRow(row tabular.Row) (*models.College, string) {
	college := &models.College{
		Code:    strings.ToUpper(strings.TrimSpace(row.Fields["college_code"])),
		Name:    strings.Join(strings.Fields(row.Fields["college_name"]), " "),
		Address: strings.TrimSpace(row.Fields["address"]),
	}
	if college.Code == "" || college.Name == "" {
		return college, "college_code and college_name are required"
	}

	lat, latErr := parseCoordinate(row.Fields["latitude"])
	lon, lonErr := parseCoordinate(row.Fields["longitude"])
	if latErr != nil || lonErr != nil {
		return college, "latitude and longitude must be numbers"
	}
	if !(geo.Point{Lat: lat, Lon: lon}).Valid() {
		return college, "coordinates out of range"
	}
	college.Latitude, college.Longitude = lat, lon
	return college, ""
}

func parseCoordinate(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}
