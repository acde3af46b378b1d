package services

import (
	"context"
	"testing"

	"github.com/codearena/judge/internal/analysis"
	"github.com/codearena/judge/types"
	"github.com/stretchr/testify/require"
)

type capturingCompleter struct {
	last analysis.Request
}

func (c *capturingCompleter) Analyze(ctx context.Context, req analysis.Request) (string, error) {
	c.last = req
	return "looks linear", nil
}

type staticTitles map[int]string

func (s staticTitles) Title(ctx context.Context, problemID int) string {
	return s[problemID]
}

func TestAnalysisServiceBuildsRequest(t *testing.T) {
	completer := &capturingCompleter{}
	service := NewAnalysisService(completer, staticTitles{3: "Repetitions"})
	report := types.NewEvaluationReport([]types.TestCaseResult{{Index: 0, Passed: true}, {Index: 1}})

	out, err := service.Analyze(context.Background(), SubmissionInput{
		ProblemID:  3,
		LanguageID: types.LanguageCPP,
		SourceCode: "int main() {}",
	}, report)
	require.NoError(t, err)
	require.Equal(t, "looks linear", out)
	require.Equal(t, "Repetitions", completer.last.ProblemTitle)
	require.Equal(t, "C++", completer.last.Language)
	require.Equal(t, 1, completer.last.PassedCount)
	require.Equal(t, 2, completer.last.TotalCount)
}

func TestAnalysisServiceFallsBackToProblemNumber(t *testing.T) {
	completer := &capturingCompleter{}
	service := NewAnalysisService(completer, nil)

	_, err := service.Analyze(context.Background(), SubmissionInput{ProblemID: 8, LanguageID: types.LanguagePython}, types.EvaluationReport{})
	require.NoError(t, err)
	require.Equal(t, "Problem 8", completer.last.ProblemTitle)
	require.Equal(t, "Python", completer.last.Language)
}
