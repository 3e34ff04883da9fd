package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/medilens/internal/ai"
	"github.com/medilens/internal/domain"
	"go.uber.org/zap"
)

// ChatHistory persists chat sessions. *store.Store implements it.
type ChatHistory interface {
	AppendChatMessage(ctx context.Context, m *domain.ChatMessage) error
	ListChatMessages(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error)
	ClearChat(ctx context.Context, sessionID string) (int64, error)
}

// Assistant answers health questions. Both the health check of the query and
// the answer itself go through the same Invoker as report analysis.
type Assistant struct {
	invoker Invoker
	prompts ai.PromptBuilder
	history ChatHistory
	logger  *zap.Logger
}

// NewAssistant creates an Assistant. history may be nil.
func NewAssistant(invoker Invoker, prompts ai.PromptBuilder, history ChatHistory, logger *zap.Logger) *Assistant {
	return &Assistant{
		invoker: invoker,
		prompts: prompts,
		history: history,
		logger:  logger.Named("assistant"),
	}
}

// AnalyzeHealthQuery answers query when it is about health.
func (a *Assistant) AnalyzeHealthQuery(ctx context.Context, query string) domain.Result[string] {
	return recordOutcome("health_query", a.analyzeHealthQuery(ctx, query))
}

func (a *Assistant) analyzeHealthQuery(ctx context.Context, query string) domain.Result[string] {
	if strings.TrimSpace(query) == "" {
		return domain.Fail[string](domain.FailureInvalidInput, MsgQueryRequired)
	}

	check := a.invoker.Invoke(ctx, a.prompts.QueryClassification(query))
	if check.Kind() == domain.FailureEmptyResponse {
		// An empty classification is not a "yes".
		return domain.Fail[string](domain.FailureNotHealthRelated, MsgNotHealthQuery)
	}
	if !check.Ok() {
		return check
	}
	if answer, _ := check.Data(); !ai.IsAffirmative(answer) {
		return domain.Fail[string](domain.FailureNotHealthRelated, MsgNotHealthQuery)
	}

	reply := a.invoker.Invoke(ctx, query)
	if reply.Kind() == domain.FailureEmptyResponse {
		return domain.Fail[string](domain.FailureEmptyResponse, MsgChatEmpty)
	}
	return reply
}

// Ask runs AnalyzeHealthQuery and records the exchange in the session
// history. An empty sessionID starts a new session.
func (a *Assistant) Ask(ctx context.Context, sessionID, query string) domain.Result[domain.ChatExchange] {
	if strings.TrimSpace(query) == "" {
		return domain.Recast[domain.ChatExchange](a.AnalyzeHealthQuery(ctx, query))
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	a.record(ctx, &domain.ChatMessage{SessionID: sessionID, Role: domain.ChatRoleUser, Text: query})

	res := a.AnalyzeHealthQuery(ctx, query)
	if !res.Ok() {
		a.record(ctx, &domain.ChatMessage{
			SessionID: sessionID,
			Role:      domain.ChatRoleAssistant,
			Text:      res.Message(),
			Failed:    true,
		})
		return domain.Recast[domain.ChatExchange](res)
	}

	reply, _ := res.Data()
	a.record(ctx, &domain.ChatMessage{SessionID: sessionID, Role: domain.ChatRoleAssistant, Text: reply})

	return domain.Succeed(domain.ChatExchange{SessionID: sessionID, Reply: reply})
}

// History returns the latest limit messages of a session, oldest first.
func (a *Assistant) History(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	if a.history == nil {
		return []domain.ChatMessage{}, nil
	}
	return a.history.ListChatMessages(ctx, sessionID, limit)
}

// ClearHistory deletes a session's messages.
func (a *Assistant) ClearHistory(ctx context.Context, sessionID string) (int64, error) {
	if a.history == nil {
		return 0, nil
	}
	return a.history.ClearChat(ctx, sessionID)
}

// record stores m. History is best effort; a failed write does not fail the exchange.
func (a *Assistant) record(ctx context.Context, m *domain.ChatMessage) {
	if a.history == nil {
		return
	}
	if err := a.history.AppendChatMessage(ctx, m); err != nil {
		a.logger.Warn("failed to record chat message",
			zap.String("session_id", m.SessionID),
			zap.String("role", string(m.Role)),
			zap.Error(err),
		)
	}
}
