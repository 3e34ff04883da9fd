// Package ai provides the AI client interface and implementations.
package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/medilens/internal/config"
	"github.com/medilens/internal/domain"
	"go.uber.org/zap"
)

// GeminiClient implements the Client interface using Google's Gemini API.
type GeminiClient struct {
	config     *config.AIConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// Gemini API request/response structures

// geminiRequest represents the request body for Gemini API.
type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings,omitempty"`
}

// geminiContent represents a content block in Gemini API.
type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

// geminiPart represents a part of content (text or inline image).
type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

// geminiInlineData carries base64 encoded media next to the prompt.
type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// geminiGenerationConfig contains generation parameters.
type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
}

// geminiSafetySetting represents a safety setting for content filtering.
type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// geminiResponse represents the response from Gemini API.
type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
	Error          *geminiError          `json:"error,omitempty"`
	UsageMetadata  *geminiUsageMetadata  `json:"usageMetadata,omitempty"`
}

// geminiUsageMetadata contains token usage info.
type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// geminiCandidate represents a response candidate.
type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index,omitempty"`
}

// geminiPromptFeedback contains feedback about the prompt.
type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// geminiError represents an error response from Gemini API.
type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGeminiClient creates a new Gemini AI client.
func NewGeminiClient(cfg *config.AIConfig, logger *zap.Logger) *GeminiClient {
	return &GeminiClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.Named("gemini_client"),
	}
}

// Name implements Client.
func (c *GeminiClient) Name() string { return string(config.AIProviderGemini) }

// Generate sends one prompt to the Gemini API and returns the text of the
// first part of the first candidate.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, "generate", []geminiPart{{Text: prompt}})
}

// ExtractText asks Gemini to transcribe an image sent as inline data.
func (c *GeminiClient) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := checkImage(mimeType); err != nil {
		return "", err
	}
	parts := []geminiPart{
		{Text: transcriptionPrompt},
		{InlineData: &geminiInlineData{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(data),
		}},
	}
	return c.generate(ctx, "extract_text", parts)
}

func (c *GeminiClient) generate(ctx context.Context, op string, parts []geminiPart) (string, error) {
	startTime := time.Now()

	// Thinking models spend output tokens on reasoning before answering.
	maxTokens := c.config.MaxTokens
	if isThinkingModel(c.config.Model) {
		maxTokens = c.config.MaxTokens * 4
		if maxTokens < 4096 {
			maxTokens = 4096
		}
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: parts},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.2,
			MaxOutputTokens: maxTokens,
			TopP:            0.95,
			TopK:            40,
		},
		SafetySettings: []geminiSafetySetting{
			{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
			{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
			{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_ONLY_HIGH"},
			{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", domain.WrapError("marshal_request", err, false)
	}

	text, err := c.executeRequest(ctx, c.buildURL(), jsonBody)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Gemini call completed",
		zap.String("op", op),
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("text_length", len(text)),
	)

	return text, nil
}

// buildURL constructs the Gemini API URL.
func (c *GeminiClient) buildURL() string {
	baseURL := strings.TrimSuffix(c.config.BaseURL, "/")

	// Support both full URL and just the base
	if strings.Contains(baseURL, "/v1") {
		return fmt.Sprintf("%s/models/%s:generateContent?key=%s", baseURL, c.config.Model, c.config.APIKey)
	}

	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", baseURL, c.config.Model, c.config.APIKey)
}

// executeRequest performs a single HTTP request to the Gemini API.
func (c *GeminiClient) executeRequest(ctx context.Context, url string, jsonBody []byte) (string, error) {
	c.logger.Debug("sending Gemini request",
		zap.String("url", maskAPIKey(url)),
		zap.Int("body_size", len(jsonBody)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", domain.WrapError("create_request", err, false)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.WrapError("gemini_timeout", domain.ErrProviderTimeout, true)
		}
		return "", domain.WrapError("http_request", err, true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.WrapError("read_response", err, true)
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.handleHTTPError(resp.StatusCode, body)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		c.logger.Warn("failed to unmarshal Gemini response",
			zap.Error(err),
			zap.String("body_preview", truncate(string(body), 500)),
		)
		return "", domain.WrapError("parse_response", err, true)
	}

	if geminiResp.Error != nil {
		return "", domain.WrapError("gemini_api_error",
			fmt.Errorf("[%d] %s: %s", geminiResp.Error.Code, geminiResp.Error.Status, geminiResp.Error.Message), false)
	}

	if geminiResp.PromptFeedback != nil && geminiResp.PromptFeedback.BlockReason != "" {
		return "", domain.WrapError("content_blocked",
			fmt.Errorf("%w: %s", domain.ErrContentBlocked, geminiResp.PromptFeedback.BlockReason), false)
	}

	if len(geminiResp.Candidates) == 0 {
		return "", domain.WrapError("empty_response", domain.ErrEmptyResponse, false)
	}

	candidate := geminiResp.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return "", domain.WrapError("safety_filter",
			fmt.Errorf("%w: response blocked by safety filter", domain.ErrContentBlocked), false)
	}

	if len(candidate.Content.Parts) == 0 {
		c.logger.Warn("empty parts in candidate",
			zap.String("finish_reason", candidate.FinishReason),
		)
		return "", domain.WrapError("empty_content", domain.ErrEmptyResponse, false)
	}

	return strings.TrimSpace(candidate.Content.Parts[0].Text), nil
}

// handleHTTPError maps HTTP error statuses to classified call errors.
func (c *GeminiClient) handleHTTPError(statusCode int, body []byte) error {
	var errResp geminiResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		c.logger.Warn("Gemini API error",
			zap.Int("status", statusCode),
			zap.String("error_status", errResp.Error.Status),
			zap.String("error_message", errResp.Error.Message),
		)
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return domain.WrapError("rate_limit", domain.ErrRateLimited, true)
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.WrapError("auth_error",
			fmt.Errorf("authentication failed (status %d): check your API key", statusCode), false)
	case http.StatusBadRequest:
		return domain.WrapError("bad_request",
			fmt.Errorf("bad request: %s", truncate(string(body), 200)), false)
	case http.StatusNotFound:
		return domain.WrapError("model_not_found",
			fmt.Errorf("model not found: check model name in configuration"), false)
	default:
		if statusCode >= 500 {
			return domain.WrapError("gemini_unavailable", domain.ErrProviderUnavailable, true)
		}
		return domain.WrapError("gemini_error",
			fmt.Errorf("Gemini API returned status %d: %s", statusCode, truncate(string(body), 200)), false)
	}
}

// HealthCheck verifies the Gemini API is reachable.
func (c *GeminiClient) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1beta/models?key=%s", strings.TrimSuffix(c.config.BaseURL, "/"), c.config.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError("health_check", domain.ErrProviderUnavailable, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.WrapError("health_check", domain.ErrProviderUnavailable, true)
	}

	return nil
}

// maskAPIKey masks the API key in a URL for safe logging.
func maskAPIKey(url string) string {
	if idx := strings.Index(url, "key="); idx != -1 {
		endIdx := strings.Index(url[idx:], "&")
		if endIdx == -1 {
			return url[:idx] + "key=***"
		}
		return url[:idx] + "key=***" + url[idx+endIdx:]
	}
	return url
}

// isThinkingModel returns true if the model is a thinking/reasoning model
// that uses tokens for internal reasoning (e.g., gemini-2.5-pro).
func isThinkingModel(model string) bool {
	return strings.Contains(model, "2.5") ||
		strings.Contains(model, "thinking") ||
		strings.Contains(model, "reasoning")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
