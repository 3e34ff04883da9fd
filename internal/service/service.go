package service

import (
	"context"

	"github.com/medilens/internal/domain"
	"github.com/medilens/internal/metrics"
	"github.com/medilens/internal/orchestrator"
)

// User-facing failure messages.
const (
	MsgReportRequired  = "Report name and content are required."
	MsgNotHealthReport = "The provided content does not appear to be health-related. Please submit a valid health report."
	MsgParseFailure    = "Failed to parse analysis results. Please try again."
	MsgQueryRequired   = "Query is required."
	MsgNotHealthQuery  = "Please ask health-related questions."
	MsgChatEmpty       = "Empty response. Try again."
	MsgTextRequired    = "Text is required."
	MsgUnsupportedFile = "Unsupported file type"
	MsgSaveFailed      = "Failed to save report. Please try again."
)

// Invoker runs provider calls under the throttle and retry policy.
// *orchestrator.Orchestrator implements it.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) domain.Result[string]
	Do(ctx context.Context, op string, call orchestrator.CallFunc) domain.Result[string]
}

// recordOutcome counts a finished use case by success or failure kind.
func recordOutcome[T any](usecase string, r domain.Result[T]) domain.Result[T] {
	outcome := "success"
	if !r.Ok() {
		outcome = string(r.Kind())
	}
	metrics.IncOutcome(usecase, outcome)
	return r
}
