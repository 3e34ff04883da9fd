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

	"github.com/medilens/internal/config"
	"github.com/medilens/internal/domain"
	"go.uber.org/zap"
)

// OpenAIClient implements the Client interface using OpenAI-compatible API.
type OpenAIClient struct {
	config     *config.AIConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// OpenAI API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

// chatMessage content is either a plain string or a list of contentParts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIClient creates a new OpenAI-compatible AI client.
func NewOpenAIClient(cfg *config.AIConfig, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.Named("openai_client"),
	}
}

// Name implements Client.
func (c *OpenAIClient) Name() string { return string(config.AIProviderOpenAI) }

// Generate sends one user message and returns the first choice's content.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, chatMessage{Role: "user", Content: prompt})
}

// ExtractText sends the image as a data URL next to the transcription prompt.
func (c *OpenAIClient) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := checkImage(mimeType); err != nil {
		return "", err
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	return c.complete(ctx, chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: transcriptionPrompt},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		},
	})
}

func (c *OpenAIClient) complete(ctx context.Context, msg chatMessage) (string, error) {
	reqBody := chatRequest{
		Model:       c.config.Model,
		Messages:    []chatMessage{msg},
		MaxTokens:   c.config.MaxTokens,
		Temperature: 0.2,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", domain.WrapError("marshal_request", err, false)
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimSuffix(c.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", domain.WrapError("create_request", err, false)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.APIKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.WrapError("ai_timeout", domain.ErrProviderTimeout, true)
		}
		return "", domain.WrapError("http_request", err, true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.WrapError("read_response", err, true)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", domain.WrapError("rate_limit", domain.ErrRateLimited, true)
		}
		if resp.StatusCode >= 500 {
			return "", domain.WrapError("ai_unavailable", domain.ErrProviderUnavailable, true)
		}
		return "", domain.WrapError("ai_error",
			fmt.Errorf("AI API returned status %d: %s", resp.StatusCode, truncate(string(body), 200)), false)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		c.logger.Warn("failed to unmarshal AI response",
			zap.Error(err),
			zap.String("body_preview", truncate(string(body), 500)),
		)
		return "", domain.WrapError("parse_response", err, true)
	}

	if chatResp.Error != nil {
		return "", domain.WrapError("ai_api_error",
			fmt.Errorf("%s: %s", chatResp.Error.Type, chatResp.Error.Message), false)
	}

	if len(chatResp.Choices) == 0 {
		return "", domain.WrapError("empty_response", domain.ErrEmptyResponse, false)
	}

	if chatResp.Choices[0].FinishReason == "content_filter" {
		return "", domain.WrapError("content_filter", domain.ErrContentBlocked, false)
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// HealthCheck verifies the AI service is reachable.
func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/models", strings.TrimSuffix(c.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.APIKey))

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
