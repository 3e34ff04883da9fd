package service

import (
	"context"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/medilens/internal/ai"
	"github.com/medilens/internal/domain"
	"go.uber.org/zap"
)

// ReportStore persists analysed reports. *store.Store implements it.
type ReportStore interface {
	CreateReport(ctx context.Context, r *domain.Report) error
	ListReports(ctx context.Context, limit int) ([]domain.Report, error)
	GetReport(ctx context.Context, id string) (*domain.Report, error)
	DeleteReport(ctx context.Context, id string) error
}

// Archiver keeps a copy of uploaded files. *archive.S3Archive implements it.
type Archiver interface {
	Archive(ctx context.Context, reportID, filename, contentType string, data []byte) (string, error)
}

// Upload is a report file received from a client.
type Upload struct {
	// Name is the report name; the file name is used when empty.
	Name     string
	Filename string
	Data     []byte
}

// Report sources.
const (
	SourceText   = "text"
	SourceUpload = "upload"
	SourceOCR    = "ocr"
)

// imageTypes are the upload types sent to the provider for transcription.
var imageTypes = []string{"image/png", "image/jpeg", "image/webp"}

// Reports analyses reports, keeps them in a store and archives uploads.
type Reports struct {
	analyzer  *Analyzer
	invoker   Invoker
	extractor ai.TextExtractor
	store     ReportStore
	archive   Archiver
	logger    *zap.Logger
}

// NewReports creates the report library. archive may be nil.
func NewReports(
	analyzer *Analyzer,
	invoker Invoker,
	extractor ai.TextExtractor,
	store ReportStore,
	archive Archiver,
	logger *zap.Logger,
) *Reports {
	return &Reports{
		analyzer:  analyzer,
		invoker:   invoker,
		extractor: extractor,
		store:     store,
		archive:   archive,
		logger:    logger.Named("reports"),
	}
}

// Analyze runs AnalyzeReport on a text report and saves it on success.
func (r *Reports) Analyze(ctx context.Context, req domain.AnalyzeReportRequest) domain.Result[domain.Report] {
	res := r.analyzer.AnalyzeReport(ctx, req.Name, req.Content)
	if !res.Ok() {
		return domain.Recast[domain.Report](res)
	}
	payload, _ := res.Data()
	return r.save(ctx, payload, SourceText, nil, "")
}

// Upload turns an uploaded file into text, analyses it and saves the report.
// Plain text is read as is; PNG, JPEG and WebP images are transcribed by the
// provider. The original file is archived when an archive is configured.
func (r *Reports) Upload(ctx context.Context, up Upload) domain.Result[domain.Report] {
	return recordOutcome("upload", r.upload(ctx, up))
}

func (r *Reports) upload(ctx context.Context, up Upload) domain.Result[domain.Report] {
	name := strings.TrimSpace(up.Name)
	if name == "" {
		name = strings.TrimSuffix(path.Base(up.Filename), path.Ext(up.Filename))
	}
	if len(up.Data) == 0 || name == "" || name == "." {
		return domain.Fail[domain.Report](domain.FailureInvalidInput, MsgReportRequired)
	}

	mt := mimetype.Detect(up.Data)
	r.logger.Debug("upload received",
		zap.String("filename", up.Filename),
		zap.String("mime", mt.String()),
		zap.Int("size", len(up.Data)),
	)

	var (
		text   string
		source string
	)
	switch {
	case mt.Is("text/plain"):
		text, source = string(up.Data), SourceUpload
	case isImage(mt):
		if r.extractor == nil {
			return domain.Fail[domain.Report](domain.FailureInvalidInput, MsgUnsupportedFile)
		}
		extracted := r.ExtractText(ctx, up.Data, mt.String())
		if !extracted.Ok() {
			return domain.Recast[domain.Report](extracted)
		}
		text, _ = extracted.Data()
		source = SourceOCR
	default:
		r.logger.Info("rejected upload", zap.String("mime", mt.String()))
		return domain.Fail[domain.Report](domain.FailureInvalidInput, MsgUnsupportedFile)
	}

	res := r.analyzer.AnalyzeReport(ctx, name, text)
	if !res.Ok() {
		return domain.Recast[domain.Report](res)
	}
	payload, _ := res.Data()

	return r.save(ctx, payload, source, up.Data, up.Filename)
}

// ExtractText transcribes an image under the throttle and retry policy.
func (r *Reports) ExtractText(ctx context.Context, data []byte, mimeType string) domain.Result[string] {
	return recordOutcome("extract_text", r.invoker.Do(ctx, "extract_text", func(ctx context.Context) (string, error) {
		return r.extractor.ExtractText(ctx, data, mimeType)
	}))
}

func (r *Reports) save(ctx context.Context, payload domain.AnalysisPayload, source string, original []byte, filename string) domain.Result[domain.Report] {
	report := &domain.Report{
		ID:       uuid.Must(uuid.NewV7()).String(),
		Name:     payload.ReportName,
		Content:  payload.ReportContent,
		Analysis: payload.Analysis,
		Source:   source,
	}

	if r.archive != nil && original != nil {
		key, err := r.archive.Archive(ctx, report.ID, filename, mimetype.Detect(original).String(), original)
		if err != nil {
			r.logger.Warn("failed to archive upload", zap.String("report_id", report.ID), zap.Error(err))
		} else {
			report.ArchiveKey = key
		}
	}

	if r.store == nil {
		return domain.Succeed(*report)
	}
	if err := r.store.CreateReport(ctx, report); err != nil {
		r.logger.Error("failed to save report", zap.String("report_id", report.ID), zap.Error(err))
		return domain.Fail[domain.Report](domain.FailureUnexpected, MsgSaveFailed)
	}

	r.logger.Info("report saved",
		zap.String("report_id", report.ID),
		zap.String("source", source),
	)
	return domain.Succeed(*report)
}

// List returns up to limit saved reports, newest first.
func (r *Reports) List(ctx context.Context, limit int) ([]domain.Report, error) {
	return r.store.ListReports(ctx, limit)
}

// Get returns one saved report.
func (r *Reports) Get(ctx context.Context, id string) (*domain.Report, error) {
	return r.store.GetReport(ctx, id)
}

// Delete removes one saved report.
func (r *Reports) Delete(ctx context.Context, id string) error {
	return r.store.DeleteReport(ctx, id)
}

func isImage(mt *mimetype.MIME) bool {
	for _, t := range imageTypes {
		if mt.Is(t) {
			return true
		}
	}
	return false
}
