package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/codearena/judge/types"
	"go.uber.org/zap"
)

// ErrStorageUnavailable is returned when a submission could not be appended.
var ErrStorageUnavailable = errors.New("submission storage unavailable")

// SubmissionRepository defines persistence operations for submissions.
// There is no update or delete: history is append-only.
type SubmissionRepository interface {
	Append(ctx context.Context, record types.SubmissionRecord) (int64, error)
	Latest(ctx context.Context, userID, problemID int) (types.SubmissionRecord, error)
	ListByUser(ctx context.Context, userID, offset, limit int) ([]types.SubmissionRecord, int, error)
	SolvedProblems(ctx context.Context, userID int) ([]int, error)
}

// EventPublisher publishes JSON events to a broker channel.
type EventPublisher interface {
	PublishJSON(ctx context.Context, channel string, value any, attrs map[string]string) (string, error)
}

// SubmissionService records submissions and serves history.
type SubmissionService struct {
	repo    SubmissionRepository
	events  EventPublisher
	channel string
	log     *zap.SugaredLogger
}

// NewSubmissionService constructs the service. events may be nil.
func NewSubmissionService(repo SubmissionRepository, events EventPublisher, channel string, log *zap.SugaredLogger) *SubmissionService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &SubmissionService{
		repo:    repo,
		events:  events,
		channel: channel,
		log:     log,
	}
}

// Append stores the record and announces it on the event channel.
// A publish failure does not fail the append.
func (s *SubmissionService) Append(ctx context.Context, record types.SubmissionRecord) (int64, error) {
	id, err := s.repo.Append(ctx, record)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	if s.events != nil && s.channel != "" {
		event := types.SubmissionEvent{
			SubmissionID: id,
			EvaluationID: record.EvaluationID,
			UserID:       record.UserID,
			ProblemID:    record.ProblemID,
			LanguageID:   record.LanguageID,
			PassedCount:  record.Report.PassedCount,
			TotalCount:   record.Report.TotalCount,
			AllPassed:    record.Report.AllPassed,
			CreatedAt:    record.CreatedAt,
		}
		attrs := map[string]string{
			"problem_id": strconv.Itoa(record.ProblemID),
			"user_id":    strconv.Itoa(record.UserID),
		}
		if _, err := s.events.PublishJSON(ctx, s.channel, event, attrs); err != nil {
			s.log.Warnw("failed to publish submission event",
				"submission_id", id,
				"channel", s.channel,
				"error", err,
			)
		}
	}
	return id, nil
}

func (s *SubmissionService) Latest(ctx context.Context, userID, problemID int) (types.SubmissionRecord, error) {
	return s.repo.Latest(ctx, userID, problemID)
}

func (s *SubmissionService) ListByUser(ctx context.Context, userID, offset, limit int) ([]types.SubmissionRecord, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.ListByUser(ctx, userID, offset, limit)
}

func (s *SubmissionService) SolvedProblems(ctx context.Context, userID int) ([]int, error) {
	return s.repo.SolvedProblems(ctx, userID)
}
