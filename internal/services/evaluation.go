package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/codearena/judge/config"
	"github.com/codearena/judge/internal/judge0"
	"github.com/codearena/judge/internal/testcases"
	"github.com/codearena/judge/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidInput is returned for an empty source or a bad problem id.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoTestCases is returned when a problem archive has no usable pairs.
	ErrNoTestCases = errors.New("no test cases")

	// ErrRepository wraps test-case archive failures (missing or malformed).
	ErrRepository = errors.New("test case repository error")
)

// Placeholders used instead of an analysis when none could be produced.
const (
	AnalysisUnavailable = "Analysis unavailable."
	AnalysisFailed      = "Error analyzing code."
)

const (
	defaultConcurrency   = 4
	defaultCPUTimeLimit  = 5
	defaultMemoryLimitKB = 128000
	recordTimeout        = 30 * time.Second
)

// TestCaseLoader yields the ordered test cases of a problem.
type TestCaseLoader interface {
	Load(ctx context.Context, problemID int) ([]types.TestCase, error)
}

// ExecutionEngine runs one program against one input on the remote engine.
type ExecutionEngine interface {
	Submit(ctx context.Context, req types.ExecutionRequest) (types.ExecutionToken, error)
	Await(ctx context.Context, token types.ExecutionToken) (types.ExecutionOutcome, error)
}

// SubmissionRecorder appends a finished submission to history.
type SubmissionRecorder interface {
	Append(ctx context.Context, record types.SubmissionRecord) (int64, error)
}

// Analyzer produces natural-language feedback for a submission.
type Analyzer interface {
	Analyze(ctx context.Context, in SubmissionInput, report types.EvaluationReport) (string, error)
}

// SubmissionInput is what a user submits for judging.
type SubmissionInput struct {
	UserID     int
	ProblemID  int
	LanguageID types.LanguageID
	SourceCode string
}

// Evaluator drives a submission's test cases through the execution engine
// with a bounded number of cases in flight.
type Evaluator struct {
	tests    TestCaseLoader
	engine   ExecutionEngine
	recorder SubmissionRecorder
	analyzer Analyzer
	log      *zap.SugaredLogger

	concurrency   int
	retries       int
	cpuTimeLimit  float64
	memoryLimitKB int

	pending sync.WaitGroup
}

// NewEvaluator constructs an Evaluator. recorder and analyzer may be nil.
func NewEvaluator(
	cfg config.EvaluationConfig,
	tests TestCaseLoader,
	engine ExecutionEngine,
	recorder SubmissionRecorder,
	analyzer Analyzer,
	log *zap.SugaredLogger,
) *Evaluator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	concurrency := cfg.MaxConcurrentTestCases
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	retries := cfg.TestCaseRetries
	if retries < 0 {
		retries = 0
	}
	cpuTimeLimit := cfg.CPUTimeLimitSeconds
	if cpuTimeLimit <= 0 {
		cpuTimeLimit = defaultCPUTimeLimit
	}
	memoryLimitKB := cfg.MemoryLimitKB
	if memoryLimitKB <= 0 {
		memoryLimitKB = defaultMemoryLimitKB
	}

	return &Evaluator{
		tests:         tests,
		engine:        engine,
		recorder:      recorder,
		analyzer:      analyzer,
		log:           log,
		concurrency:   concurrency,
		retries:       retries,
		cpuTimeLimit:  cpuTimeLimit,
		memoryLimitKB: memoryLimitKB,
	}
}

// Evaluate runs sourceCode against every test case of the problem.
//
// Invalid language, empty source, and archive problems fail the whole
// evaluation before anything is executed. Failures of individual test cases
// are reported in their result and never abort the others. When ctx is done,
// cases that had not started are reported as cancelled.
func (e *Evaluator) Evaluate(ctx context.Context, sourceCode string, languageID types.LanguageID, problemID int) (types.EvaluationReport, error) {
	log := e.log.With("evaluation_id", uuid.NewString(), "problem_id", problemID, "language_id", languageID)
	return e.evaluate(ctx, log, sourceCode, languageID, problemID)
}

// Submit evaluates a submission, attaches analysis and a summary, and hands
// the record to the recorder in the background.
func (e *Evaluator) Submit(ctx context.Context, in SubmissionInput) (types.SubmissionResult, error) {
	evaluationID := uuid.NewString()
	log := e.log.With(
		"evaluation_id", evaluationID,
		"problem_id", in.ProblemID,
		"language_id", in.LanguageID,
		"user_id", in.UserID,
	)

	report, err := e.evaluate(ctx, log, in.SourceCode, in.LanguageID, in.ProblemID)
	if err != nil {
		return types.SubmissionResult{}, err
	}

	analysis := e.analyze(ctx, log, in, report)
	summary := fmt.Sprintf("Passed %d out of %d test cases.", report.PassedCount, report.TotalCount)

	e.record(ctx, log, types.SubmissionRecord{
		EvaluationID: evaluationID,
		UserID:       in.UserID,
		ProblemID:    in.ProblemID,
		LanguageID:   in.LanguageID,
		SourceCode:   in.SourceCode,
		Report:       report,
		Analysis:     analysis,
		Summary:      summary,
		CreatedAt:    time.Now().UTC(),
	})

	return types.SubmissionResult{
		EvaluationID: evaluationID,
		PassedCount:  report.PassedCount,
		TotalCount:   report.TotalCount,
		AllPassed:    report.AllPassed,
		Results:      report.Results,
		Summary:      summary,
		Analysis:     analysis,
	}, nil
}

// Wait blocks until background recording has finished.
func (e *Evaluator) Wait() {
	e.pending.Wait()
}

func (e *Evaluator) evaluate(ctx context.Context, log *zap.SugaredLogger, sourceCode string, languageID types.LanguageID, problemID int) (types.EvaluationReport, error) {
	if !languageID.Valid() {
		return types.EvaluationReport{}, fmt.Errorf("%w: %d", types.ErrInvalidLanguage, languageID)
	}
	if strings.TrimSpace(sourceCode) == "" {
		return types.EvaluationReport{}, fmt.Errorf("%w: source code is empty", ErrInvalidInput)
	}
	if problemID < 1 {
		return types.EvaluationReport{}, fmt.Errorf("%w: problem id %d", ErrInvalidInput, problemID)
	}

	cases, err := e.tests.Load(ctx, problemID)
	switch {
	case err == nil:
	case errors.Is(err, testcases.ErrNoTestCases):
		log.Warnw("test case archive has no test cases", "error", err)
		return types.EvaluationReport{}, fmt.Errorf("%w: problem %d", ErrNoTestCases, problemID)
	case errors.Is(err, testcases.ErrNotFound):
		log.Warnw("test case archive not found", "error", err)
		return types.EvaluationReport{}, fmt.Errorf("%w: %w", ErrRepository, err)
	case errors.Is(err, testcases.ErrMalformed):
		log.Warnw("test case archive is malformed", "error", err)
		return types.EvaluationReport{}, fmt.Errorf("%w: %w", ErrRepository, err)
	default:
		log.Errorw("failed to load test cases", "error", err)
		return types.EvaluationReport{}, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	if len(cases) == 0 {
		log.Warnw("test case archive has no test cases")
		return types.EvaluationReport{}, fmt.Errorf("%w: problem %d", ErrNoTestCases, problemID)
	}

	started := time.Now()
	results := e.runAll(ctx, log, sourceCode, languageID, cases)
	report := types.NewEvaluationReport(results)

	log.Infow("evaluation finished",
		"passed", report.PassedCount,
		"total", report.TotalCount,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return report, nil
}

// runAll fans the cases out to at most e.concurrency workers. Each worker
// writes only its own slot, so results stay in case order.
func (e *Evaluator) runAll(ctx context.Context, log *zap.SugaredLogger, sourceCode string, languageID types.LanguageID, cases []types.TestCase) []types.TestCaseResult {
	results := make([]types.TestCaseResult, len(cases))
	for i, tc := range cases {
		results[i] = failedResult(tc, types.LabelCancelled)
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, tc := range cases {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			req := types.ExecutionRequest{
				SourceCode:          sourceCode,
				LanguageID:          languageID,
				Stdin:               tc.Input,
				CPUTimeLimitSeconds: e.cpuTimeLimit,
				MemoryLimitKB:       e.memoryLimitKB,
			}
			results[i] = e.runCase(ctx, log, req, tc)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Warnw("evaluation cancelled", "error", err)
	}
	return results
}

func (e *Evaluator) runCase(ctx context.Context, log *zap.SugaredLogger, req types.ExecutionRequest, tc types.TestCase) types.TestCaseResult {
	var (
		outcome types.ExecutionOutcome
		err     error
	)
	for attempt := 0; attempt <= e.retries; attempt++ {
		outcome, err = e.execute(ctx, req)
		if err == nil || ctx.Err() != nil || !retryable(err) {
			break
		}
		if attempt < e.retries {
			log.Warnw("retrying test case", "index", tc.Index, "attempt", attempt+1, "error", err)
		}
	}
	if err != nil {
		label := failureLabel(ctx, err)
		log.Warnw("test case execution failed", "index", tc.Index, "label", label, "error", err)
		return failedResult(tc, label)
	}
	return judge(tc, outcome)
}

func (e *Evaluator) execute(ctx context.Context, req types.ExecutionRequest) (types.ExecutionOutcome, error) {
	token, err := e.engine.Submit(ctx, req)
	if err != nil {
		return types.ExecutionOutcome{}, err
	}
	return e.engine.Await(ctx, token)
}

func (e *Evaluator) analyze(ctx context.Context, log *zap.SugaredLogger, in SubmissionInput, report types.EvaluationReport) string {
	if e.analyzer == nil {
		return AnalysisUnavailable
	}
	analysis, err := e.analyzer.Analyze(ctx, in, report)
	if err != nil {
		log.Warnw("code analysis failed", "error", err)
		return AnalysisFailed
	}
	return analysis
}

func (e *Evaluator) record(ctx context.Context, log *zap.SugaredLogger, record types.SubmissionRecord) {
	if e.recorder == nil {
		return
	}
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()

		id, err := e.recorder.Append(recordCtx, record)
		if err != nil {
			log.Warnw("failed to record submission", "error", err)
			return
		}
		log.Infow("submission recorded", "submission_id", id)
	}()
}

// judge compares the visible output with the expected output of tc.
func judge(tc types.TestCase, outcome types.ExecutionOutcome) types.TestCaseResult {
	actual := outcome.VisibleOutput()
	result := types.TestCaseResult{
		Index:          tc.Index,
		Passed:         outcome.Status == types.StatusAccepted && strings.TrimSpace(actual) == tc.ExpectedOutput,
		ActualOutput:   actual,
		ExpectedOutput: tc.ExpectedOutput,
		StatusLabel:    outcome.Label(),
	}
	if outcome.TimeSeconds != nil {
		result.ExecutionTimeMs = int64(math.Round(*outcome.TimeSeconds * 1000))
	}
	if outcome.MemoryKB != nil {
		result.MemoryKB = *outcome.MemoryKB
	}
	return result
}

func failedResult(tc types.TestCase, label string) types.TestCaseResult {
	return types.TestCaseResult{
		Index:          tc.Index,
		Passed:         false,
		ExpectedOutput: tc.ExpectedOutput,
		StatusLabel:    label,
	}
}

func retryable(err error) bool {
	return errors.Is(err, judge0.ErrSubmissionFailed) || errors.Is(err, judge0.ErrEngineUnavailable)
}

func failureLabel(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return types.LabelCancelled
	case errors.Is(err, judge0.ErrPollTimeout):
		return types.LabelTimedOut
	case errors.Is(err, judge0.ErrSubmissionFailed):
		return types.LabelSubmissionFailed
	default:
		return types.LabelEngineUnavailable
	}
}
