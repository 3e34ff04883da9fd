// Package service contains the business logic layer.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/medilens/internal/ai"
	"github.com/medilens/internal/domain"
	"github.com/medilens/pkg/sanitizer"
	"go.uber.org/zap"
)

// Analyzer runs the two-phase report analysis and free-text summaries.
type Analyzer struct {
	invoker   Invoker
	prompts   ai.PromptBuilder
	validator ai.ResponseValidator
	sanitizer *sanitizer.Sanitizer
	logger    *zap.Logger
}

// NewAnalyzer creates a new Analyzer with all dependencies.
func NewAnalyzer(
	invoker Invoker,
	prompts ai.PromptBuilder,
	validator ai.ResponseValidator,
	sanitizer *sanitizer.Sanitizer,
	logger *zap.Logger,
) *Analyzer {
	return &Analyzer{
		invoker:   invoker,
		prompts:   prompts,
		validator: validator,
		sanitizer: sanitizer,
		logger:    logger.Named("analyzer"),
	}
}

// AnalyzeReport processes a report through the analysis pipeline:
// 1. Validate input
// 2. Sanitize the content sent to the provider
// 3. Ask whether the content is health related
// 4. Extract the structured analysis and validate its keys
func (a *Analyzer) AnalyzeReport(ctx context.Context, name, content string) domain.Result[domain.AnalysisPayload] {
	return recordOutcome("analyze_report", a.analyzeReport(ctx, name, content))
}

func (a *Analyzer) analyzeReport(ctx context.Context, name, content string) domain.Result[domain.AnalysisPayload] {
	startTime := time.Now()

	if a.sanitizer.IsEmpty(name) || a.sanitizer.IsEmpty(content) {
		return domain.Fail[domain.AnalysisPayload](domain.FailureInvalidInput, MsgReportRequired)
	}

	if a.sanitizer.IsTooLarge(content) {
		a.logger.Warn("report too large, will be truncated",
			zap.Int("original_size", len(content)),
		)
	}

	sanitized, stats := a.sanitizer.SanitizeWithStats(content)
	a.logger.Debug("report sanitized",
		zap.Int("original_size", stats.OriginalSize),
		zap.Int("sanitized_size", stats.SanitizedSize),
		zap.Int("masked", stats.MaskedCount),
		zap.Bool("truncated", stats.Truncated),
	)

	check := a.invoker.Invoke(ctx, a.prompts.ReportClassification(sanitized))
	if !check.Ok() {
		return domain.Recast[domain.AnalysisPayload](check)
	}
	if answer, _ := check.Data(); !ai.IsAffirmative(answer) {
		a.logger.Info("report rejected as not health related", zap.String("report", name))
		return domain.Fail[domain.AnalysisPayload](domain.FailureNotHealthRelated, MsgNotHealthReport)
	}

	extraction := a.invoker.Invoke(ctx, a.prompts.ReportExtraction(sanitized))
	if !extraction.Ok() {
		return domain.Recast[domain.AnalysisPayload](extraction)
	}

	raw, _ := extraction.Data()
	analysis, err := ai.ParseAnalysis(raw, a.validator)
	if err != nil {
		var missing *ai.MissingFieldsError
		if errors.As(err, &missing) {
			a.logger.Warn("analysis missing fields", zap.Strings("fields", missing.Fields))
			return domain.Fail[domain.AnalysisPayload](domain.FailureMissingFields, missing.Error())
		}
		a.logger.Warn("failed to parse analysis", zap.Error(err))
		return domain.Fail[domain.AnalysisPayload](domain.FailureParse, MsgParseFailure)
	}

	a.logger.Info("report analysis completed",
		zap.String("report", name),
		zap.Duration("duration", time.Since(startTime)),
	)

	return domain.Succeed(domain.AnalysisPayload{
		ReportName:    name,
		ReportContent: content,
		Analysis:      analysis,
	})
}

// Summarize returns a short summary with key points of text.
func (a *Analyzer) Summarize(ctx context.Context, text string) domain.Result[string] {
	if a.sanitizer.IsEmpty(text) {
		return recordOutcome("summarize", domain.Fail[string](domain.FailureInvalidInput, MsgTextRequired))
	}
	return recordOutcome("summarize", a.invoker.Invoke(ctx, a.prompts.Summary(a.sanitizer.Sanitize(text))))
}
