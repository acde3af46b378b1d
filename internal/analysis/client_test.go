package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codearena/judge/config"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(config.AnalysisConfig{Model: "m"})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestAnalyze(t *testing.T) {
	received := make(chan chatRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer key" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		received <- req
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  O(n) time, O(1) space. "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client, err := New(config.AnalysisConfig{APIKey: "key", BaseURL: srv.URL + "/", Model: "llama-3.3-70b-versatile"})
	require.NoError(t, err)

	out, err := client.Analyze(context.Background(), Request{
		ProblemTitle: "Weird Algorithm",
		Language:     "Python",
		SourceCode:   "print(1)",
		PassedCount:  1,
		TotalCount:   2,
	})
	require.NoError(t, err)
	require.Equal(t, "O(n) time, O(1) space.", out)

	req := <-received
	require.Equal(t, "llama-3.3-70b-versatile", req.Model)
	require.Equal(t, 1000, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	require.Equal(t, "system", req.Messages[0].Role)
	require.True(t, strings.Contains(req.Messages[1].Content, "Weird Algorithm"))
	require.True(t, strings.Contains(req.Messages[1].Content, "passed 1 out of 2"))
	require.True(t, strings.HasSuffix(req.Messages[1].Content, "print(1)"))
}

func TestAnalyzeEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	client, err := New(config.AnalysisConfig{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := client.Analyze(context.Background(), Request{SourceCode: "x"})
	require.NoError(t, err)
	require.Equal(t, NoAnalysis, out)
}

func TestAnalyzeUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	client, err := New(config.AnalysisConfig{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Analyze(context.Background(), Request{SourceCode: "x"})
	require.Error(t, err)
}
