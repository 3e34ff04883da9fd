package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/medilens/internal/config"
	"github.com/medilens/internal/domain"
	"go.uber.org/zap"
)

func TestOpenAIClient_Generate(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		want       string
		wantErr    error
	}{
		{
			name:       "first choice",
			statusCode: http.StatusOK,
			body:       `{"choices":[{"message":{"content":" no "},"finish_reason":"stop"}]}`,
			want:       "no",
		},
		{
			name:       "no choices",
			statusCode: http.StatusOK,
			body:       `{"choices":[]}`,
			wantErr:    domain.ErrEmptyResponse,
		},
		{
			name:       "rate limited",
			statusCode: http.StatusTooManyRequests,
			body:       `{}`,
			wantErr:    domain.ErrRateLimited,
		},
		{
			name:       "content filter",
			statusCode: http.StatusOK,
			body:       `{"choices":[{"message":{"content":""},"finish_reason":"content_filter"}]}`,
			wantErr:    domain.ErrContentBlocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/chat/completions" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if r.Header.Get("Authorization") != "Bearer sk-test" {
					t.Errorf("missing bearer token")
				}
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewOpenAIClient(&config.AIConfig{
				Provider:  config.AIProviderOpenAI,
				APIKey:    "sk-test",
				BaseURL:   server.URL,
				Model:     "gpt-4o-mini",
				Timeout:   5 * time.Second,
				MaxTokens: 256,
			}, zap.NewNop())

			got, err := client.Generate(context.Background(), "prompt")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Generate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenAIClient_ExtractTextSendsDataURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content []contentPart `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		parts := req.Messages[0].Content
		if len(parts) != 2 || parts[1].ImageURL == nil || !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,") {
			t.Errorf("unexpected content parts: %+v", parts)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"TSH 2.1"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(&config.AIConfig{BaseURL: server.URL, Timeout: 5 * time.Second, MaxTokens: 256}, zap.NewNop())
	got, err := client.ExtractText(context.Background(), []byte{0xff, 0xd8, 0xff}, "image/jpeg")
	if err != nil || got != "TSH 2.1" {
		t.Errorf("ExtractText() = %q, %v", got, err)
	}
}

func TestMockClient_AnswersByPromptShape(t *testing.T) {
	p, _ := NewDefaultPromptBuilder()
	m := NewMockClient(zap.NewNop())
	ctx := context.Background()

	if got, _ := m.Generate(ctx, p.ReportClassification("x")); !IsAffirmative(got) {
		t.Errorf("classification answer = %q", got)
	}
	if got, _ := m.Generate(ctx, p.QueryClassification("x")); !IsAffirmative(got) {
		t.Errorf("query classification answer = %q", got)
	}

	raw, _ := m.Generate(ctx, p.ReportExtraction("x"))
	if _, err := ParseAnalysis(raw, nil); err != nil {
		t.Errorf("mock analysis should parse: %v", err)
	}

	if got, _ := m.Generate(ctx, p.Summary("x")); got == "" {
		t.Error("summary should not be empty")
	}
}

func TestExtractText_RejectsNonImages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for non-image media")
	}))
	defer server.Close()

	clients := map[string]TextExtractor{
		"openai": NewOpenAIClient(&config.AIConfig{BaseURL: server.URL, Timeout: 5 * time.Second, MaxTokens: 256}, zap.NewNop()),
		"gemini": NewGeminiClient(testGeminiConfig(server.URL), zap.NewNop()),
	}
	for name, c := range clients {
		t.Run(name, func(t *testing.T) {
			_, err := c.ExtractText(context.Background(), []byte("%PDF-1.7"), "application/pdf")
			if !errors.Is(err, domain.ErrUnsupportedMedia) {
				t.Errorf("error = %v, want ErrUnsupportedMedia", err)
			}
			if !domain.IsPermanent(err) {
				t.Error("unsupported media should be permanent")
			}
		})
	}
}
