package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/insightx/models"
)

func main() {
	apiURL := os.Getenv("INSIGHTX_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("INSIGHTX_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "INSIGHTX_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"insightx",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	extractTool := mcp.NewTool("extract_reviews",
		mcp.WithDescription("Open a review page in a headless browser and return the plain review text. Map place pages get consent handling, the reviews tab and container scrolling; other pages return their visible text."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the review page (map place page, shortlink, or any content page)"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Serve a cached result younger than this many milliseconds (default: 0, no cache)"),
		),
	)
	s.AddTool(extractTool, handleExtract(apiURL, apiKey))

	analyzeTool := mcp.NewTool("analyze_reviews",
		mcp.WithDescription("Extract review text from a page and summarise it into positive and negative topics with an OpenAI-compatible model."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the review page"),
		),
		mcp.WithString("llm_api_key",
			mcp.Required(),
			mcp.Description("API key for the LLM service (OpenAI-compatible)"),
		),
		mcp.WithString("llm_model",
			mcp.Description("LLM model to use (default: 'gpt-4o-mini')"),
		),
		mcp.WithString("llm_base_url",
			mcp.Description("Base URL for the LLM API (default: 'https://api.openai.com/v1'). Supports any OpenAI-compatible API."),
		),
	)
	s.AddTool(analyzeTool, handleAnalyze(apiURL, apiKey))

	batchTool := mcp.NewTool("batch_extract",
		mcp.WithDescription("Extract review text from several pages in the background and return every result once the batch finishes."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of review page URLs"),
		),
	)
	s.AddTool(batchTool, handleBatch(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the insightx API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, apiURL, apiKey, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollBatch polls a batch job until its status is no longer "processing" or ctx is done.
func pollBatch(ctx context.Context, client *http.Client, apiURL, apiKey, id string, every time.Duration) (*models.BatchStatusResponse, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := apiDo(ctx, client, http.MethodGet, apiURL, apiKey, "/api/v1/batch/"+id, nil)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}

			var status models.BatchStatusResponse
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if status.Status != models.JobProcessing {
				return &status, nil
			}
		}
	}
}

func handleExtract(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 240 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := models.ExtractRequest{
			URL:    url,
			MaxAge: int(request.GetFloat("max_age", 0)),
		}
		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL, apiKey, "/api/v1/extract", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp models.ExtractResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(failureMessage(resp.Error, resp.Result)), nil
		}

		return mcp.NewToolResultText(formatResult(resp.Result)), nil
	}
}

func handleAnalyze(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 300 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		llmKey, err := request.RequireString("llm_api_key")
		if err != nil {
			return mcp.NewToolResultError("llm_api_key is required"), nil
		}

		payload := models.AnalyzeRequest{
			URL:     url,
			APIKey:  llmKey,
			Model:   request.GetString("llm_model", ""),
			BaseURL: request.GetString("llm_base_url", ""),
		}
		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL, apiKey, "/api/v1/analyze", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp models.AnalyzeResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(failureMessage(resp.Error, resp.Result)), nil
		}

		return mcp.NewToolResultText(formatAnalysis(resp.Analysis)), nil
	}
}

func handleBatch(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL, apiKey, "/api/v1/batch/extract", models.BatchRequest{URLs: urls})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}

		var created models.BatchResponse
		if err := json.Unmarshal(respBody, &created); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse batch response: %v", err)), nil
		}
		if created.ID == "" {
			return mcp.NewToolResultError("batch job creation failed"), nil
		}

		status, err := pollBatch(ctx, client, apiURL, apiKey, created.ID, 2*time.Second)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling batch job failed: %v", err)), nil
		}

		return mcp.NewToolResultText(formatBatch(status)), nil
	}
}
