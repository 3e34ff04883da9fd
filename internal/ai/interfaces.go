// Package ai provides the AI client interface and implementations.
package ai

import (
	"context"

	"github.com/medilens/internal/domain"
)

// Client defines the interface for AI provider interactions.
// This interface allows for easy mocking and swapping of AI providers.
type Client interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Generate sends a single user prompt and returns the primary text of the
	// answer. It performs exactly one outbound call; throttling and retries
	// belong to the caller.
	Generate(ctx context.Context, prompt string) (string, error)

	// HealthCheck verifies the AI provider is reachable.
	HealthCheck(ctx context.Context) error
}

// TextExtractor transcribes the text of an image, e.g. a photographed report.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// PromptBuilder defines the interface for constructing AI prompts.
type PromptBuilder interface {
	// ReportClassification asks whether content is structured health information.
	ReportClassification(content string) string

	// ReportExtraction asks for the ten-field JSON analysis of content.
	ReportExtraction(content string) string

	// QueryClassification asks whether a chat query is about health.
	QueryClassification(query string) string

	// Summary asks for a short summary with key points.
	Summary(text string) string
}

// ResponseValidator defines the interface for validating extracted analyses.
type ResponseValidator interface {
	Validate(analysis domain.Analysis) error
}

// Provider is a Client that can also transcribe images. Every client in this
// package implements it.
type Provider interface {
	Client
	TextExtractor
}

var (
	_ Provider = (*GeminiClient)(nil)
	_ Provider = (*OpenAIClient)(nil)
	_ Provider = (*MockClient)(nil)
)
