package types

import "time"

// Local status labels for test cases the engine never reported on.
const (
	LabelSubmissionFailed  = "Submission Failed"
	LabelTimedOut          = "Evaluation Timed Out"
	LabelEngineUnavailable = "Engine Unavailable"
	LabelCancelled         = "Cancelled"
)

// TestCaseResult represents the result of executing a single test case
// as part of evaluating a submission.
type TestCaseResult struct {
	// Index is the position of the test case in the loaded set.
	Index int `json:"index"`

	// Passed is true when the engine reported Accepted and the trimmed
	// output equals the expected output.
	Passed bool `json:"passed"`

	// ActualOutput is the visible output of the program. For failed
	// compilations or runtime errors it carries the compiler output or stderr.
	ActualOutput string `json:"actualOutput"`

	// ExpectedOutput is the trimmed expected output of the test case.
	ExpectedOutput string `json:"expectedOutput"`

	// StatusLabel is the engine description or a local failure label.
	StatusLabel string `json:"statusLabel"`

	// ExecutionTimeMs is the engine-reported CPU time, in milliseconds.
	ExecutionTimeMs int64 `json:"executionTimeMs"`

	// MemoryKB is the engine-reported peak memory, when known.
	MemoryKB int `json:"memoryKB,omitempty"`
}

// EvaluationReport is the aggregate, index-ordered result of one evaluation.
type EvaluationReport struct {
	Results     []TestCaseResult `json:"results"`
	PassedCount int              `json:"passedCount"`
	TotalCount  int              `json:"totalCount"`
	AllPassed   bool             `json:"allPassed"`
}

// NewEvaluationReport derives the aggregate counters from results.
// Results must already be ordered by index.
func NewEvaluationReport(results []TestCaseResult) EvaluationReport {
	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	return EvaluationReport{
		Results:     results,
		PassedCount: passed,
		TotalCount:  len(results),
		AllPassed:   passed == len(results),
	}
}

// SubmissionRecord is the append-only history entry of one submission.
// Records are never mutated once written.
type SubmissionRecord struct {
	// ID is the unique identifier assigned on append.
	ID int64 `json:"id"`

	// EvaluationID correlates the record with evaluation logs.
	EvaluationID string `json:"evaluationId"`

	// UserID identifies the user who made the submission.
	UserID int `json:"userId"`

	// ProblemID identifies the problem this submission is for.
	ProblemID int `json:"problemId"`

	// LanguageID is the allow-listed language of the source code.
	LanguageID LanguageID `json:"languageId"`

	// SourceCode is the source code submitted by the user.
	SourceCode string `json:"sourceCode"`

	// Report is the evaluation report produced for the submission.
	Report EvaluationReport `json:"report"`

	// Analysis is the natural-language feedback, or a placeholder.
	Analysis string `json:"analysis"`

	// Summary is a one-line description of the outcome.
	Summary string `json:"summary"`

	// CreatedAt is the timestamp when the record was appended.
	CreatedAt time.Time `json:"createdAt"`
}

// SubmissionResult is the payload returned to the submitting user.
type SubmissionResult struct {
	EvaluationID string           `json:"evaluationId"`
	PassedCount  int              `json:"passedCount"`
	TotalCount   int              `json:"totalCount"`
	AllPassed    bool             `json:"allPassed"`
	Results      []TestCaseResult `json:"results"`
	Summary      string           `json:"summary"`
	Analysis     string           `json:"analysis"`
}

// Problem holds the catalog metadata used to describe a problem.
type Problem struct {
	ID            int       `json:"id"`
	Title         string    `json:"title"`
	ArchiveKey    string    `json:"archiveKey,omitempty"`
	TestCaseCount int       `json:"testCaseCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SubmissionEvent is published after a submission has been recorded.
type SubmissionEvent struct {
	SubmissionID int64      `json:"submissionId"`
	EvaluationID string     `json:"evaluationId"`
	UserID       int        `json:"userId"`
	ProblemID    int        `json:"problemId"`
	LanguageID   LanguageID `json:"languageId"`
	PassedCount  int        `json:"passedCount"`
	TotalCount   int        `json:"totalCount"`
	AllPassed    bool       `json:"allPassed"`
	CreatedAt    time.Time  `json:"createdAt"`
}
