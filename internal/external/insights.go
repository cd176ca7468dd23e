package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"formguard/internal/types"
)

const (
	completionAPIBase      = "https://api.openai.com"
	completionDefaultModel = "gpt-4o-mini"
	insightSystemPrompt    = "You summarize web form submissions for the form owner. " +
		"Report recurring themes, notable requests and anything that looks like spam. " +
		"Answer in at most five short bullet points."
)

// CompletionConfig configures the chat completion client used for insights.
type CompletionConfig struct {
	APIKey    types.SecretString
	Model     string
	BaseURL   string // Override for testing; defaults to completionAPIBase
	MaxTokens int
	Logger    *slog.Logger
}

// CompletionClient calls an OpenAI-compatible /v1/chat/completions endpoint.
type CompletionClient struct {
	base      *BaseClient
	apiKey    types.SecretString
	model     string
	baseURL   string
	maxTokens int
	logger    *slog.Logger
}

// NewCompletionClient creates a CompletionClient with the default retry policy.
func NewCompletionClient(httpClient *http.Client, cfg CompletionConfig) *CompletionClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(httpClient, "llm", DefaultRetryPolicy(), "FormGuard/1.0", WithLogger(logger))
	return NewCompletionClientWithBase(base, cfg)
}

// NewCompletionClientWithBase creates a CompletionClient around a pre-built BaseClient.
func NewCompletionClientWithBase(base *BaseClient, cfg CompletionConfig) *CompletionClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = completionAPIBase
	}
	model := cfg.Model
	if model == "" {
		model = completionDefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 400
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionClient{
		base:      base,
		apiKey:    cfg.APIKey,
		model:     model,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		maxTokens: maxTokens,
		logger:    logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize asks the model for a short digest of the given submissions.
func (c *CompletionClient) Summarize(ctx context.Context, formName string, submissions []*types.Submission) (string, error) {
	if c.apiKey.IsZero() {
		return "", types.NewAppError(types.ErrCodeConfigMissingSecret, "completion API key is not configured", nil)
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: insightSystemPrompt},
			{Role: "user", Content: BuildInsightPrompt(formName, submissions)},
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())

	started := time.Now()
	resp, err := c.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.WarnContext(ctx, "completion request rejected", "status", resp.StatusCode, "body", string(body))
		return "", types.NewAppError(types.ErrCodeUpstreamLLM, fmt.Sprintf("completion API returned %d", resp.StatusCode), nil)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamLLM, "failed to decode completion response", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamLLM, "completion response was empty", nil)
	}

	c.logger.DebugContext(ctx, "completion finished", "model", c.model, "duration_ms", time.Since(started).Milliseconds())
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// maxPromptSubmissions caps how many submissions are embedded in one prompt.
const maxPromptSubmissions = 50

// BuildInsightPrompt renders submissions as numbered JSON lines.
func BuildInsightPrompt(formName string, submissions []*types.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Form: %s\n", formName)
	fmt.Fprintf(&b, "Submissions (newest first, %d total):\n", len(submissions))
	for i, s := range submissions {
		if i == maxPromptSubmissions {
			fmt.Fprintf(&b, "... %d more omitted\n", len(submissions)-maxPromptSubmissions)
			break
		}
		data, err := json.Marshal(s.Data)
		if err != nil {
			data = []byte("{}")
		}
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, s.CreatedAt.UTC().Format(time.RFC3339), data)
	}
	return b.String()
}
