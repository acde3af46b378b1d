package judge0

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codearena/judge/config"
	"github.com/codearena/judge/types"
)

var (
	// ErrSubmissionFailed is returned when the engine did not accept a submission.
	ErrSubmissionFailed = errors.New("submission failed")

	// ErrPollTimeout is returned when an execution is still pending after the poll budget.
	ErrPollTimeout = errors.New("evaluation timed out")

	// ErrEngineUnavailable is returned when a status poll cannot reach the engine.
	ErrEngineUnavailable = errors.New("engine unavailable")
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultMaxPollAttempts = 15
	defaultRequestTimeout  = 10 * time.Second
	maxResponseBytes       = 16 << 20
)

// Client talks to a Judge0-compatible execution engine.
// It is safe for concurrent use; the underlying http.Client is shared.
type Client struct {
	baseURL         string
	apiKey          string
	apiHost         string
	httpClient      *http.Client
	pollInterval    time.Duration
	maxPollAttempts int
}

// NewClient constructs a client from config. A nil httpClient gets one with
// the configured request timeout.
func NewClient(cfg config.EngineConfig, httpClient *http.Client) *Client {
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	interval := cfg.PollInterval()
	if interval <= 0 {
		interval = defaultPollInterval
	}
	attempts := cfg.MaxPollAttempts
	if attempts <= 0 {
		attempts = defaultMaxPollAttempts
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	apiHost := ""
	if parsed, err := url.Parse(baseURL); err == nil {
		apiHost = parsed.Hostname()
	}

	return &Client{
		baseURL:         baseURL,
		apiKey:          strings.TrimSpace(cfg.APIKey),
		apiHost:         apiHost,
		httpClient:      httpClient,
		pollInterval:    interval,
		maxPollAttempts: attempts,
	}
}

type submissionRequest struct {
	SourceCode   string  `json:"source_code"`
	LanguageID   int     `json:"language_id"`
	Stdin        string  `json:"stdin"`
	CPUTimeLimit float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit  int     `json:"memory_limit,omitempty"`
}

type submissionResponse struct {
	Token string `json:"token"`
}

type submissionStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type submissionDetails struct {
	Status        submissionStatus `json:"status"`
	Stdout        *string          `json:"stdout"`
	Stderr        *string          `json:"stderr"`
	CompileOutput *string          `json:"compile_output"`
	Time          decimal          `json:"time"`
	Memory        *int             `json:"memory"`
}

// decimal accepts the engine's time field as a quoted or bare number.
type decimal struct {
	value *float64
}

func (d *decimal) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		d.value = nil
		return nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		d.value = nil
		return nil
	}
	d.value = &parsed
	return nil
}

// Submit sends one execution request and returns the engine's token.
// It performs a single network call and never retries.
func (c *Client) Submit(ctx context.Context, req types.ExecutionRequest) (types.ExecutionToken, error) {
	if !req.LanguageID.Valid() {
		return "", fmt.Errorf("%w: %d", types.ErrInvalidLanguage, req.LanguageID)
	}

	body, err := json.Marshal(submissionRequest{
		SourceCode:   req.SourceCode,
		LanguageID:   int(req.LanguageID),
		Stdin:        req.Stdin,
		CPUTimeLimit: req.CPUTimeLimitSeconds,
		MemoryLimit:  req.MemoryLimitKB,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrSubmissionFailed, err)
	}

	endpoint := c.baseURL + "/submissions?base64_encoded=false&wait=false"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrSubmissionFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: engine returned %d", ErrSubmissionFailed, resp.StatusCode)
	}

	var out submissionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrSubmissionFailed, err)
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", fmt.Errorf("%w: response has no token", ErrSubmissionFailed)
	}
	return types.ExecutionToken(out.Token), nil
}

// Await polls the engine until the execution reaches a terminal status.
// Cancellation of ctx is honored between polls and returns ctx.Err().
func (c *Client) Await(ctx context.Context, token types.ExecutionToken) (types.ExecutionOutcome, error) {
	for attempt := 1; attempt <= c.maxPollAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return types.ExecutionOutcome{}, err
		}

		details, err := c.fetch(ctx, token)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return types.ExecutionOutcome{}, ctxErr
			}
			return types.ExecutionOutcome{}, err
		}

		status := types.StatusCode(details.Status.ID)
		if status.Terminal() {
			return types.ExecutionOutcome{
				Status:        status,
				Description:   details.Status.Description,
				Stdout:        details.Stdout,
				Stderr:        details.Stderr,
				CompileOutput: details.CompileOutput,
				TimeSeconds:   details.Time.value,
				MemoryKB:      details.Memory,
			}, nil
		}

		if attempt == c.maxPollAttempts {
			break
		}
		wait := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return types.ExecutionOutcome{}, ctx.Err()
		case <-wait.C:
		}
	}

	return types.ExecutionOutcome{}, fmt.Errorf("%w: token %s still pending after %d polls", ErrPollTimeout, token, c.maxPollAttempts)
}

// Run submits the request and waits for its outcome.
func (c *Client) Run(ctx context.Context, req types.ExecutionRequest) (types.ExecutionOutcome, error) {
	token, err := c.Submit(ctx, req)
	if err != nil {
		return types.ExecutionOutcome{}, err
	}
	return c.Await(ctx, token)
}

func (c *Client) fetch(ctx context.Context, token types.ExecutionToken) (submissionDetails, error) {
	endpoint := fmt.Sprintf("%s/submissions/%s?base64_encoded=false", c.baseURL, url.PathEscape(string(token)))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return submissionDetails{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	c.setAuthHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return submissionDetails{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return submissionDetails{}, fmt.Errorf("%w: read response: %v", ErrEngineUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return submissionDetails{}, fmt.Errorf("%w: engine returned %d", ErrEngineUnavailable, resp.StatusCode)
	}

	var details submissionDetails
	if err := json.Unmarshal(data, &details); err != nil {
		return submissionDetails{}, fmt.Errorf("%w: decode response: %v", ErrEngineUnavailable, err)
	}
	return details, nil
}

func (c *Client) setAuthHeaders(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	req.Header.Set("X-RapidAPI-Key", c.apiKey)
	req.Header.Set("X-RapidAPI-Host", c.apiHost)
}
