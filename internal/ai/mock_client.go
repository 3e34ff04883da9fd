// Package ai provides the AI client interface and implementations.
package ai

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

const mockAnalysis = "```json\n" + `{
  "problem": "Mock analysis. Enable a real provider by setting AI_MOCK_MODE=false",
  "solution": "Configure AI_API_KEY and restart the service",
  "precautions": ["Do not rely on mock output for medical decisions"],
  "suggestions": ["Set AI_PROVIDER to gemini or openai"],
  "tips": ["Keep reports legible for better extraction"],
  "uses": [],
  "dosage": "",
  "sideEffects": [],
  "route": "",
  "disclaimer": "This is not medical advice. Consult a qualified professional."
}` + "\n```"

// MockClient implements Client and TextExtractor with canned answers keyed
// on the prompt shape.
type MockClient struct {
	logger *zap.Logger
}

// NewMockClient creates a new mock AI client for testing.
func NewMockClient(logger *zap.Logger) *MockClient {
	return &MockClient{
		logger: logger.Named("mock_ai_client"),
	}
}

// Name implements Client.
func (c *MockClient) Name() string { return "mock" }

// Generate answers classification prompts with "yes", extraction prompts
// with a complete fenced analysis and anything else with a short note.
func (c *MockClient) Generate(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug("mock AI generate", zap.Int("prompt_length", len(prompt)))

	switch {
	case strings.Contains(prompt, yesNoInstruction):
		return "yes", nil
	case strings.Contains(prompt, jsonOnlyMarker):
		return mockAnalysis, nil
	case strings.Contains(prompt, summaryMarker):
		return "Mock summary.\n\n- Key findings are unavailable in mock mode.", nil
	default:
		return "This is a mock response. Enable real AI by setting AI_MOCK_MODE=false.", nil
	}
}

// ExtractText returns a fixed transcription.
func (c *MockClient) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	c.logger.Debug("mock AI extract text", zap.Int("bytes", len(data)), zap.String("mime", mimeType))
	return "Mock transcription. Hemoglobin 13.5 g/dL (13.0-17.0).", nil
}

// HealthCheck always returns success for mock client.
func (c *MockClient) HealthCheck(ctx context.Context) error {
	return nil
}
