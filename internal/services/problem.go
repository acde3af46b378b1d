package services

import (
	"context"
	"errors"

	"github.com/codearena/judge/internal/store"
	"github.com/codearena/judge/types"
	"go.uber.org/zap"
)

// ProblemRepository defines persistence operations for the problem catalog.
type ProblemRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Problem, int, error)
	Get(ctx context.Context, id int) (types.Problem, error)
	Upsert(ctx context.Context, problem types.Problem) (types.Problem, error)
}

// ArchiveStore validates and stores test-case archives.
type ArchiveStore interface {
	SaveArchive(ctx context.Context, problemID int, filename string, data []byte) (string, []types.TestCase, error)
}

// CacheInvalidator drops cached test cases of a problem.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, problemID int) error
}

// ProblemService encapsulates problem use-cases.
type ProblemService struct {
	repo     ProblemRepository
	archives ArchiveStore
	cache    CacheInvalidator
	log      *zap.SugaredLogger
}

// NewProblemService constructs the service. cache may be nil.
func NewProblemService(repo ProblemRepository, archives ArchiveStore, cache CacheInvalidator, log *zap.SugaredLogger) *ProblemService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ProblemService{
		repo:     repo,
		archives: archives,
		cache:    cache,
		log:      log,
	}
}

func (s *ProblemService) List(ctx context.Context, offset, limit int) ([]types.Problem, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

func (s *ProblemService) Get(ctx context.Context, id int) (types.Problem, error) {
	return s.repo.Get(ctx, id)
}

// UploadTestCases replaces the problem's archive. The archive is parsed
// before it is stored, so a malformed upload leaves the old one in place.
func (s *ProblemService) UploadTestCases(ctx context.Context, problemID int, title, filename string, data []byte) (types.Problem, error) {
	if problemID < 1 {
		return types.Problem{}, ErrInvalidInput
	}

	key, cases, err := s.archives.SaveArchive(ctx, problemID, filename, data)
	if err != nil {
		return types.Problem{}, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, problemID); err != nil {
			s.log.Warnw("failed to invalidate test case cache", "problem_id", problemID, "error", err)
		}
	}

	problem, err := s.repo.Upsert(ctx, types.Problem{
		ID:            problemID,
		Title:         title,
		ArchiveKey:    key,
		TestCaseCount: len(cases),
	})
	if err != nil {
		return types.Problem{}, err
	}

	s.log.Infow("test cases uploaded", "problem_id", problemID, "archive", key, "count", len(cases))
	return problem, nil
}

// Title returns the problem title, or an empty string when unknown.
func (s *ProblemService) Title(ctx context.Context, problemID int) string {
	problem, err := s.repo.Get(ctx, problemID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warnw("failed to load problem", "problem_id", problemID, "error", err)
		}
		return ""
	}
	return problem.Title
}
