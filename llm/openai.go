package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/use-agent/insightx/models"
)

// Client is a lightweight OpenAI-compatible API client for review analysis.
// It holds no credentials: every call carries its own Params.
type Client struct {
	httpClient    *http.Client
	maxInputRunes int
}

// NewClient creates a new analysis client with the given http.Client.
// Pass nil to use a client without a timeout (rely on ctx). Texts longer
// than maxInputRunes are truncated before sending; <= 0 means 15000.
func NewClient(httpClient *http.Client, maxInputRunes int) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if maxInputRunes <= 0 {
		maxInputRunes = 15000
	}
	return &Client{httpClient: httpClient, maxInputRunes: maxInputRunes}
}

// Params holds per-request endpoint configuration (BYOK).
type Params struct {
	APIKey  string
	Model   string
	BaseURL string // e.g. "https://api.openai.com/v1"
}

// AnalyzeInput is the text to analyze plus the hints gathered during extraction.
type AnalyzeInput struct {
	Text     string
	URL      string
	Platform models.Variant
	SiteName string
}

// AnalyzeResult holds the analysis output.
type AnalyzeResult struct {
	Analysis  *models.Analysis
	Usage     *models.LLMUsage
	Truncated bool
}

// chatRequest is the OpenAI chat completion request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the minimal OpenAI chat completion response we need.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// chatErrorResponse captures an API error from the provider.
type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Analyze sends the review text to the endpoint and decodes the
// {platform,total_reviews,good,bad} breakdown it returns.
func (c *Client) Analyze(ctx context.Context, in AnalyzeInput, params Params) (*AnalyzeResult, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no content to analyze", nil)
	}
	text, truncated := truncateRunes(in.Text, c.maxInputRunes)

	reqBody := chatRequest{
		Model: params.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(in, text)},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(params.BaseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid analysis endpoint", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+params.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeAnalysisFailure, "analysis request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeAnalysisFailure, "failed to read analysis response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeAnalysisFailure, "failed to parse analysis response", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeAnalysisFailure, "analysis returned no choices", nil)
	}

	var analysis models.Analysis
	raw := stripFences(chatResp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeAnalysisFailure, "analysis returned invalid JSON", err)
	}

	return &AnalyzeResult{
		Analysis: &analysis,
		Usage: &models.LLMUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
		Truncated: truncated,
	}, nil
}

const systemPrompt = `You are an expert business analyst. You analyze customer feedback scraped from review pages.

Tasks:
1. Identify the platform (Google Maps, Facebook, or Other) based on the text and hints.
2. Analyze sentiment (good/bad) and extract key topics.
3. Estimate percentages for the top 3 good and top 3 bad feedback topics.

Return ONLY JSON in exactly this format, no markdown:
{"platform": "detected_platform", "total_reviews": "estimated count or N/A", "good": [{"label": "Topic", "value": 30}], "bad": [{"label": "Topic", "value": 40}]}`

func buildUserPrompt(in AnalyzeInput, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source URL: %s\n", in.URL)
	if in.Platform == models.VariantMapReview {
		b.WriteString("Platform hint: map review page\n")
	}
	if in.SiteName != "" {
		fmt.Fprintf(&b, "Site name: %s\n", in.SiteName)
	}
	b.WriteString("\nRaw text:\n")
	b.WriteString(text)
	return b.String()
}

// truncateRunes cuts s to at most max runes.
func truncateRunes(s string, max int) (string, bool) {
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// stripFences removes a ```json ... ``` wrapper some models add despite
// being told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// classifyError maps HTTP status codes to appropriate error codes.
func classifyError(statusCode int, body []byte) *models.ScrapeError {
	var errResp chatErrorResponse
	msg := "analysis API error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return models.NewScrapeError(models.ErrCodeAnalysisAuthFailure, msg, nil)
	case statusCode == http.StatusTooManyRequests:
		return models.NewScrapeError(models.ErrCodeAnalysisRateLimited, msg, nil)
	default:
		return models.NewScrapeError(models.ErrCodeAnalysisFailure, fmt.Sprintf("analysis API returned %d: %s", statusCode, msg), nil)
	}
}
