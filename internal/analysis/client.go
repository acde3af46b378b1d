package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codearena/judge/config"
	openai "github.com/sashabaranov/go-openai"
)

// ErrNotConfigured is returned by New when no API key is set.
var ErrNotConfigured = errors.New("analysis is not configured")

// NoAnalysis is returned when the model answers with an empty message.
const NoAnalysis = "No analysis available."

const systemPrompt = `You are a code analysis AI. Your job is to review code and provide feedback. Provide the feedback in the following order:

1) Time complexity analysis
2) Space complexity analysis

Then, provide feedback in points regarding whether the user is going in the right direction or not and how they can improve the time and space complexity of the code. Give only plain text and a short answer.`

// Request carries what the model sees about a submission.
type Request struct {
	ProblemTitle string
	Language     string
	SourceCode   string
	PassedCount  int
	TotalCount   int
}

// Client asks an OpenAI-compatible chat completion endpoint for feedback.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
}

func New(cfg config.AnalysisConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientConfig.BaseURL = base
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	return &Client{
		api:       openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

// Analyze returns the model's plain-text review of the submitted code.
func (c *Client) Analyze(ctx context.Context, req Request) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
		Temperature: 0.7,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return NoAnalysis, nil
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return NoAnalysis, nil
	}
	return content, nil
}

func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This is the code that I wrote for the problem: %s.", req.ProblemTitle)
	if req.TotalCount > 0 {
		fmt.Fprintf(&b, " It passed %d out of %d test cases.", req.PassedCount, req.TotalCount)
	}
	fmt.Fprintf(&b, " Analyze the following %s code:\n\n%s", req.Language, req.SourceCode)
	return b.String()
}
