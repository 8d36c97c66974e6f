package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/result-distribution-api/internal/models"
	"github.com/noah-isme/result-distribution-api/pkg/querygraph"
)

// Catalog graph nodes and the state keys they read.
const (
	CatalogBatches   = "batches"
	CatalogPrograms  = "programs"
	CatalogSemesters = "semesters"
	CatalogCourses   = "courses"

	StateProgramID  = "program_id"
	StateSemesterID = "semester_id"

	catalogCachePrefix = "catalog"
)

type catalogReader interface {
	ListBatches(ctx context.Context) ([]models.Batch, error)
	ListPrograms(ctx context.Context) ([]models.Program, error)
	ListSemesters(ctx context.Context, programID string) ([]models.Semester, error)
	ListCourses(ctx context.Context, programID, semesterID string) ([]models.Course, error)
}

// CatalogService answers program → semester → course lookups, re-running only the lookups
// whose parameters changed since the caller's previous state.
type CatalogService struct {
	repo   catalogReader
	cache  *CacheService
	graph  *querygraph.Graph
	group  singleflight.Group
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogService constructs the service. cache may be nil.
func NewCatalogService(repo catalogReader, cache *CacheService, ttl time.Duration, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	graph, err := querygraph.New(catalogNodes()...)
	if err != nil {
		panic(err)
	}
	return &CatalogService{repo: repo, cache: cache, graph: graph, ttl: ttl, logger: logger}
}

func catalogNodes() []querygraph.Node {
	constant := func(key string) func(querygraph.State) (string, bool) {
		return func(querygraph.State) (string, bool) { return key, true }
	}
	return []querygraph.Node{
		{Name: CatalogBatches, Key: constant(CatalogBatches)},
		{Name: CatalogPrograms, Key: constant(CatalogPrograms)},
		{
			Name:     CatalogSemesters,
			Upstream: []string{CatalogPrograms},
			Key: func(s querygraph.State) (string, bool) {
				pid := s[StateProgramID]
				return CatalogSemesters + ":" + pid, pid != ""
			},
		},
		{
			Name:     CatalogCourses,
			Upstream: []string{CatalogSemesters},
			Key: func(s querygraph.State) (string, bool) {
				pid, sid := s[StateProgramID], s[StateSemesterID]
				return CatalogCourses + ":" + pid + ":" + sid, pid != "" && sid != ""
			},
		},
	}
}

// Resolve runs the lookups planned between prev and next. A nil prev runs every enabled lookup.
func (s *CatalogService) Resolve(ctx context.Context, prev, next querygraph.State) (*models.CatalogView, error) {
	view := &models.CatalogView{Fetched: []string{}}
	for _, step := range s.graph.Plan(prev, next) {
		if err := s.run(ctx, step, next, view); err != nil {
			return nil, err
		}
		view.Fetched = append(view.Fetched, step.Name)
	}
	return view, nil
}

func (s *CatalogService) run(ctx context.Context, step querygraph.Step, state querygraph.State, view *models.CatalogView) error {
	switch step.Name {
	case CatalogBatches:
		return fetchCatalog(ctx, s, step.Key, &view.Batches, func(ctx context.Context) ([]models.Batch, error) {
			return s.repo.ListBatches(ctx)
		})
	case CatalogPrograms:
		return fetchCatalog(ctx, s, step.Key, &view.Programs, func(ctx context.Context) ([]models.Program, error) {
			return s.repo.ListPrograms(ctx)
		})
	case CatalogSemesters:
		return fetchCatalog(ctx, s, step.Key, &view.Semesters, func(ctx context.Context) ([]models.Semester, error) {
			return s.repo.ListSemesters(ctx, state[StateProgramID])
		})
	case CatalogCourses:
		return fetchCatalog(ctx, s, step.Key, &view.Courses, func(ctx context.Context) ([]models.Course, error) {
			return s.repo.ListCourses(ctx, state[StateProgramID], state[StateSemesterID])
		})
	default:
		return fmt.Errorf("unknown catalog step %q", step.Name)
	}
}

// fetchCatalog reads key from cache, falling back to load. Concurrent loads of the same key share
// one query.
func fetchCatalog[T any](ctx context.Context, s *CatalogService, key string, dest *[]T, load func(context.Context) ([]T, error)) error {
	cacheKey := catalogCachePrefix + ":" + key
	if s.cache.Get(ctx, cacheKey, dest) {
		return nil
	}
	v, err, shared := s.group.Do(cacheKey, func() (interface{}, error) {
		items, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		s.cache.Set(ctx, cacheKey, items, s.ttl)
		return items, nil
	})
	if err != nil {
		return storageError(err, "failed to load catalog")
	}
	if shared {
		s.logger.Debug("catalog lookup shared", zap.String("key", key))
	}
	*dest = v.([]T)
	return nil
}
