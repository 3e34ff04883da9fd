// Package domain contains the core domain models and types.
// These models represent the business logic contracts and are independent
// of any infrastructure concerns.
package domain

import (
	"time"
)

// RequiredAnalysisFields lists the keys every extracted analysis must carry,
// in the order they are reported when missing.
var RequiredAnalysisFields = []string{
	"problem",
	"solution",
	"precautions",
	"suggestions",
	"tips",
	"uses",
	"dosage",
	"sideEffects",
	"route",
	"disclaimer",
}

// Analysis is the structured object the model extracted from a report,
// kept exactly as decoded.
type Analysis map[string]any

// Missing returns the required keys absent from a, in RequiredAnalysisFields order.
func (a Analysis) Missing() []string {
	var missing []string
	for _, field := range RequiredAnalysisFields {
		if _, ok := a[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// AnalysisPayload is the successful output of report analysis.
type AnalysisPayload struct {
	ReportName    string   `json:"reportName"`
	ReportContent string   `json:"reportContent"`
	Analysis      Analysis `json:"analysis"`
}

// Report is a persisted, analysed report.
type Report struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	Analysis   Analysis  `json:"analysis"`
	Source     string    `json:"source"`
	ArchiveKey string    `json:"archive_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChatRole identifies who authored a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one entry in a chat session history.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      ChatRole  `json:"role"`
	Text      string    `json:"text"`
	Failed    bool      `json:"failed,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalyzeReportRequest is the body of a text report analysis request.
type AnalyzeReportRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// HealthQueryRequest is the body of a chat request.
type HealthQueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

// SummarizeRequest is the body of a summary request.
type SummarizeRequest struct {
	Text string `json:"text"`
}

// ChatExchange is the successful output of a chat request.
type ChatExchange struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}
