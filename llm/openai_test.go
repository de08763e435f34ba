package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/insightx/models"
)

func chatReply(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"content": content}}},
		"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func TestAnalyze(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatReply(
			"```json\n" + `{"platform":"Google Maps","total_reviews":42,"good":[{"label":"food","value":60}],"bad":[{"label":"parking","value":30}]}` + "\n```",
		))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), 10)
	res, err := c.Analyze(context.Background(), AnalyzeInput{
		Text:     strings.Repeat("好", 25),
		URL:      "https://www.google.com/maps/place/x",
		Platform: models.VariantMapReview,
	}, Params{APIKey: "sk-test", Model: "m", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.Equal(t, "Google Maps", res.Analysis.Platform)
	assert.Equal(t, models.ReviewCount("42"), res.Analysis.TotalReviews)
	require.Len(t, res.Analysis.Good, 1)
	assert.Equal(t, "food", res.Analysis.Good[0].Label)
	assert.Equal(t, 15, res.Usage.TotalTokens)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "m", got.Model)
	assert.Contains(t, got.Messages[1].Content, strings.Repeat("好", 10))
	assert.NotContains(t, got.Messages[1].Content, strings.Repeat("好", 11))
	assert.Contains(t, got.Messages[1].Content, "map review page")
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, models.ErrCodeAnalysisAuthFailure},
		{"rate limited", http.StatusTooManyRequests, `{}`, models.ErrCodeAnalysisRateLimited},
		{"server error", http.StatusBadGateway, `oops`, models.ErrCodeAnalysisFailure},
		{"invalid json content", http.StatusOK, `{"choices":[{"message":{"content":"not json"}}]}`, models.ErrCodeAnalysisFailure},
		{"no choices", http.StatusOK, `{"choices":[]}`, models.ErrCodeAnalysisFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.Client(), 0).Analyze(context.Background(),
				AnalyzeInput{Text: "some reviews"}, Params{APIKey: "k", Model: "m", BaseURL: srv.URL})
			require.Error(t, err)
			assert.Equal(t, tt.code, models.CodeOf(err))
		})
	}
}

func TestAnalyzeRejectsEmptyText(t *testing.T) {
	_, err := NewClient(nil, 0).Analyze(context.Background(), AnalyzeInput{Text: "  "}, Params{})
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))
}

func TestTruncateRunes(t *testing.T) {
	s, cut := truncateRunes("評論很多", 2)
	assert.Equal(t, "評論", s)
	assert.True(t, cut)

	s, cut = truncateRunes("ab", 2)
	assert.Equal(t, "ab", s)
	assert.False(t, cut)
}
