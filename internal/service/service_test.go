// Package service provides unit tests for the use cases.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/medilens/internal/ai"
	"github.com/medilens/internal/domain"
	"github.com/medilens/internal/orchestrator"
	"github.com/medilens/pkg/sanitizer"
	"go.uber.org/zap"
)

const fullAnalysis = `{"problem":"High LDL cholesterol","solution":"Statin therapy and diet changes","precautions":["Avoid grapefruit juice"],"suggestions":["Recheck lipids in 6 weeks"],"tips":["Walk 30 minutes daily"],"uses":["Lowers LDL"],"dosage":"10 mg nightly","sideEffects":["Muscle aches"],"route":"Oral","disclaimer":"Consult your physician."}`

type stubReply struct {
	text string
	err  error
}

// stubGenerator answers prompts in order and records them.
type stubGenerator struct {
	mu      sync.Mutex
	replies []stubReply
	prompts []string
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if len(g.replies) == 0 {
		return "", errors.New("unexpected call")
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r.text, r.err
}

func (g *stubGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func newInvoker(gen orchestrator.Generator) *orchestrator.Orchestrator {
	return orchestrator.New(gen, orchestrator.NewLocalGate(0, nil), orchestrator.Options{
		Provider:    "stub",
		MaxAttempts: 3,
	}, zap.NewNop())
}

func newTestAnalyzer(t *testing.T, gen orchestrator.Generator) *Analyzer {
	t.Helper()
	prompts, err := ai.NewDefaultPromptBuilder()
	if err != nil {
		t.Fatal(err)
	}
	return NewAnalyzer(newInvoker(gen), prompts, ai.NewDefaultValidator(), sanitizer.New(50000), zap.NewNop())
}

func TestAnalyzeReport_RequiresNameAndContent(t *testing.T) {
	tests := []struct {
		name    string
		rname   string
		content string
	}{
		{"empty name", "", "x"},
		{"empty content", "x", ""},
		{"blank content", "x", "   \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{}
			res := newTestAnalyzer(t, gen).AnalyzeReport(context.Background(), tt.rname, tt.content)

			if res.Ok() || res.Kind() != domain.FailureInvalidInput || res.Message() != MsgReportRequired {
				t.Errorf("got kind %q message %q", res.Kind(), res.Message())
			}
			if gen.Calls() != 0 {
				t.Errorf("provider calls = %d, want 0", gen.Calls())
			}
		})
	}
}

func TestAnalyzeReport_NotHealthRelatedStopsAfterOneCall(t *testing.T) {
	gen := &stubGenerator{replies: []stubReply{{text: "no"}, {text: fullAnalysis}}}
	res := newTestAnalyzer(t, gen).AnalyzeReport(context.Background(), "R", "some text")

	if res.Kind() != domain.FailureNotHealthRelated || res.Message() != MsgNotHealthReport {
		t.Errorf("got kind %q message %q", res.Kind(), res.Message())
	}
	if gen.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", gen.Calls())
	}
}

func TestAnalyzeReport_MissingFields(t *testing.T) {
	gen := &stubGenerator{replies: []stubReply{{text: "yes"}, {text: `{"problem":"p","solution":"s"}`}}}
	res := newTestAnalyzer(t, gen).AnalyzeReport(context.Background(), "R", "Hemoglobin 9.1 g/dL")

	want := "Analysis missing required fields: precautions, suggestions, tips, uses, dosage, sideEffects, route, disclaimer"
	if res.Kind() != domain.FailureMissingFields || res.Message() != want {
		t.Errorf("got kind %q message %q", res.Kind(), res.Message())
	}
}

func TestAnalyzeReport_ArrayReportsAllFieldsMissing(t *testing.T) {
	gen := &stubGenerator{replies: []stubReply{{text: "yes"}, {text: "[]"}}}
	res := newTestAnalyzer(t, gen).AnalyzeReport(context.Background(), "R", "Hemoglobin 9.1 g/dL")

	want := "Analysis missing required fields: " + strings.Join(domain.RequiredAnalysisFields, ", ")
	if res.Kind() != domain.FailureMissingFields || res.Message() != want {
		t.Errorf("got kind %q message %q", res.Kind(), res.Message())
	}
}

func TestAnalyzeReport_ParseFailure(t *testing.T) {
	gen := &stubGenerator{replies: []stubReply{{text: "Yes"}, {text: "Sorry, I can't produce JSON."}}}
	res := newTestAnalyzer(t, gen).AnalyzeReport(context.Background(), "R", "LDL 190 mg/dL")

	if res.Kind() != domain.FailureParse || res.Message() != MsgParseFailure {
		t.Errorf("got kind %q message %q", res.Kind(), res.Message())
	}
}

func TestAnalyzeReport_FencedJSONSucceeds(t *testing.T) {
	gen := &stubGenerator{replies: []stubReply{{text: " YES "}, {text: "```json\n" + fullAnalysis + "\n```"}}}
	content := "LDL 190 mg/dL, contact jane@example.com"
	res := newTestAnalyzer(t, gen).AnalyzeReport(context.Background(), "Lipid panel", content)

	payload, ok := res.Data()
	if !ok {
		t.Fatalf("expected success, got %q", res.Message())
	}

	var want map[string]any
	if err := json.Unmarshal([]byte(fullAnalysis), &want); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(map[string]any(payload.Analysis), want) {
		t.Errorf("analysis = %v, want %v", payload.Analysis, want)
	}
	if payload.ReportName != "Lipid panel" || payload.ReportContent != content {
		t.Errorf("payload should keep the original name and content, got %+v", payload)
	}

	for _, p := range gen.prompts {
		if strings.Contains(p, "jane@example.com") {
			t.Error("prompt should not contain the unmasked email")
		}
	}
}

func TestAnalyzeReport_PropagatesOrchestratorFailure(t *testing.T) {
	gen := &stubGenerator{replies: []stubReply{{text: "yes"}, {text: ""}}}
	res := newTestAnalyzer(t, gen).AnalyzeReport(context.Background(), "R", "TSH 6.2")

	if res.Kind() != domain.FailureEmptyResponse || res.Message() != orchestrator.MsgEmptyResponse {
		t.Errorf("got kind %q message %q", res.Kind(), res.Message())
	}
}

func TestSummarize(t *testing.T) {
	gen := &stubGenerator{replies: []stubReply{{text: "- Normal CBC"}}}
	a := newTestAnalyzer(t, gen)

	if res := a.Summarize(context.Background(), " "); res.Kind() != domain.FailureInvalidInput {
		t.Errorf("blank text kind = %q", res.Kind())
	}

	res := a.Summarize(context.Background(), "CBC within normal limits")
	if data, ok := res.Data(); !ok || data != "- Normal CBC" {
		t.Errorf("Summarize() = %+v", res)
	}
	if gen.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", gen.Calls())
	}
}

// memoryHistory is an in-memory ChatHistory.
type memoryHistory struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
}

func (h *memoryHistory) AppendChatMessage(ctx context.Context, m *domain.ChatMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, *m)
	return nil
}

func (h *memoryHistory) ListChatMessages(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.ChatMessage
	for _, m := range h.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (h *memoryHistory) ClearChat(ctx context.Context, sessionID string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var kept []domain.ChatMessage
	for _, m := range h.messages {
		if m.SessionID != sessionID {
			kept = append(kept, m)
		}
	}
	n := int64(len(h.messages) - len(kept))
	h.messages = kept
	return n, nil
}

func newTestAssistant(t *testing.T, gen orchestrator.Generator, history ChatHistory) *Assistant {
	t.Helper()
	prompts, err := ai.NewDefaultPromptBuilder()
	if err != nil {
		t.Fatal(err)
	}
	return NewAssistant(newInvoker(gen), prompts, history, zap.NewNop())
}

func TestAnalyzeHealthQuery(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		replies   []stubReply
		wantKind  domain.FailureKind
		wantMsg   string
		wantData  string
		wantCalls int
	}{
		{
			name:      "blank query",
			query:     "  ",
			wantKind:  domain.FailureInvalidInput,
			wantMsg:   MsgQueryRequired,
			wantCalls: 0,
		},
		{
			name:      "not health related",
			query:     "Who won the match?",
			replies:   []stubReply{{text: "no"}},
			wantKind:  domain.FailureNotHealthRelated,
			wantMsg:   MsgNotHealthQuery,
			wantCalls: 1,
		},
		{
			name:      "empty classification",
			query:     "Is 7 hours of sleep enough?",
			replies:   []stubReply{{text: "   "}},
			wantKind:  domain.FailureNotHealthRelated,
			wantMsg:   MsgNotHealthQuery,
			wantCalls: 1,
		},
		{
			name:      "empty answer",
			query:     "Is 7 hours of sleep enough?",
			replies:   []stubReply{{text: "yes"}, {text: "  "}},
			wantKind:  domain.FailureEmptyResponse,
			wantMsg:   MsgChatEmpty,
			wantCalls: 2,
		},
		{
			name:      "answered",
			query:     "Is 7 hours of sleep enough?",
			replies:   []stubReply{{text: "yes"}, {text: "For most adults, yes."}},
			wantData:  "For most adults, yes.",
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{replies: tt.replies}
			res := newTestAssistant(t, gen, nil).AnalyzeHealthQuery(context.Background(), tt.query)

			if tt.wantData != "" {
				if data, ok := res.Data(); !ok || data != tt.wantData {
					t.Errorf("AnalyzeHealthQuery() = %+v", res)
				}
			} else if res.Kind() != tt.wantKind || res.Message() != tt.wantMsg {
				t.Errorf("got kind %q message %q", res.Kind(), res.Message())
			}
			if gen.Calls() != tt.wantCalls {
				t.Errorf("provider calls = %d, want %d", gen.Calls(), tt.wantCalls)
			}
		})
	}
}

func TestAnalyzeHealthQuery_SendsRawQuery(t *testing.T) {
	gen := &stubGenerator{replies: []stubReply{{text: "yes"}, {text: "ok"}}}
	newTestAssistant(t, gen, nil).AnalyzeHealthQuery(context.Background(), "What lowers LDL?")

	if gen.prompts[1] != "What lowers LDL?" {
		t.Errorf("answer prompt = %q, want the raw query", gen.prompts[1])
	}
}

func TestAssistant_AskRecordsHistory(t *testing.T) {
	history := &memoryHistory{}
	gen := &stubGenerator{replies: []stubReply{
		{text: "yes"}, {text: "Drink water."},
		{text: "no"},
	}}
	a := newTestAssistant(t, gen, history)
	ctx := context.Background()

	first := a.Ask(ctx, "", "How do I avoid dehydration?")
	exchange, ok := first.Data()
	if !ok || exchange.Reply != "Drink water." || exchange.SessionID == "" {
		t.Fatalf("Ask() = %+v", first)
	}

	second := a.Ask(ctx, exchange.SessionID, "Best pizza in town?")
	if second.Kind() != domain.FailureNotHealthRelated {
		t.Errorf("second Ask() kind = %q", second.Kind())
	}

	msgs, _ := a.History(ctx, exchange.SessionID, 50)
	if len(msgs) != 4 {
		t.Fatalf("history len = %d, want 4", len(msgs))
	}
	if msgs[1].Role != domain.ChatRoleAssistant || msgs[1].Text != "Drink water." {
		t.Errorf("reply not recorded: %+v", msgs[1])
	}
	if !msgs[3].Failed || msgs[3].Text != MsgNotHealthQuery {
		t.Errorf("failure not recorded: %+v", msgs[3])
	}

	if n, _ := a.ClearHistory(ctx, exchange.SessionID); n != 4 {
		t.Errorf("ClearHistory() = %d, want 4", n)
	}
}
