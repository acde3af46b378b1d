package services

import (
	"context"
	"fmt"

	"github.com/codearena/judge/internal/analysis"
	"github.com/codearena/judge/types"
)

// Completer produces an analysis for a prepared request.
type Completer interface {
	Analyze(ctx context.Context, req analysis.Request) (string, error)
}

// TitleSource resolves problem titles.
type TitleSource interface {
	Title(ctx context.Context, problemID int) string
}

// AnalysisService adapts the analysis client to the Evaluator.
type AnalysisService struct {
	client Completer
	titles TitleSource
}

// NewAnalysisService constructs the service. titles may be nil.
func NewAnalysisService(client Completer, titles TitleSource) *AnalysisService {
	return &AnalysisService{client: client, titles: titles}
}

func (s *AnalysisService) Analyze(ctx context.Context, in SubmissionInput, report types.EvaluationReport) (string, error) {
	title := ""
	if s.titles != nil {
		title = s.titles.Title(ctx, in.ProblemID)
	}
	if title == "" {
		title = fmt.Sprintf("Problem %d", in.ProblemID)
	}

	language := fmt.Sprint(int(in.LanguageID))
	if lang, err := types.LookupLanguage(in.LanguageID); err == nil {
		language = lang.Name
	}

	return s.client.Analyze(ctx, analysis.Request{
		ProblemTitle: title,
		Language:     language,
		SourceCode:   in.SourceCode,
		PassedCount:  report.PassedCount,
		TotalCount:   report.TotalCount,
	})
}
