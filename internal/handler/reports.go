package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/medilens/internal/domain"
	"github.com/medilens/internal/service"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ReportHandler serves report analysis and the saved report library.
type ReportHandler struct {
	reports        *service.Reports
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reports *service.Reports, maxUploadBytes int64, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reports:        reports,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.Named("report_handler"),
	}
}

// Analyze processes POST /api/v1/reports/analyze requests.
func (h *ReportHandler) Analyze(c *gin.Context) {
	startTime := time.Now()
	logger := requestLogger(c, h.logger)

	var req domain.AnalyzeReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", zap.Error(err))
		writeError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res := h.reports.Analyze(c.Request.Context(), req)

	logger.Info("report analysis finished",
		zap.Bool("success", res.Ok()),
		zap.String("kind", string(res.Kind())),
		zap.Duration("duration", time.Since(startTime)),
	)
	writeResult(c, res)
}

// Upload processes POST /api/v1/reports/upload multipart requests carrying
// a "file" part and an optional "name" field.
func (h *ReportHandler) Upload(c *gin.Context) {
	startTime := time.Now()
	logger := requestLogger(c, h.logger)

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("upload too large", zap.Int64("limit", tooLarge.Limit))
			writeError(c, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
			return
		}
		logger.Warn("missing upload", zap.Error(err))
		writeError(c, http.StatusBadRequest, "A report file is required in the \"file\" field")
		return
	}

	f, err := header.Open()
	if err != nil {
		logger.Error("failed to open upload", zap.Error(err))
		writeError(c, http.StatusBadRequest, "Could not read uploaded file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		logger.Error("failed to read upload", zap.Error(err))
		writeError(c, http.StatusBadRequest, "Could not read uploaded file")
		return
	}

	res := h.reports.Upload(c.Request.Context(), service.Upload{
		Name:     c.PostForm("name"),
		Filename: header.Filename,
		Data:     data,
	})

	logger.Info("report upload finished",
		zap.String("filename", header.Filename),
		zap.Int("size", len(data)),
		zap.Bool("success", res.Ok()),
		zap.String("kind", string(res.Kind())),
		zap.Duration("duration", time.Since(startTime)),
	)
	writeResult(c, res)
}

// List processes GET /api/v1/reports requests.
func (h *ReportHandler) List(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	reports, err := h.reports.List(c.Request.Context(), limit)
	if err != nil {
		requestLogger(c, h.logger).Error("failed to list reports", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Could not load reports")
		return
	}
	writeResult(c, domain.Succeed(reports))
}

// Get processes GET /api/v1/reports/:id requests.
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, err, "Could not load report")
		return
	}
	writeResult(c, domain.Succeed(*report))
}

// Delete processes DELETE /api/v1/reports/:id requests.
func (h *ReportHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.reports.Delete(c.Request.Context(), id); err != nil {
		h.storeError(c, err, "Could not delete report")
		return
	}
	writeResult(c, domain.Succeed(gin.H{"id": id}))
}

func (h *ReportHandler) storeError(c *gin.Context, err error, message string) {
	if errors.Is(err, domain.ErrReportNotFound) {
		writeError(c, http.StatusNotFound, "Report not found")
		return
	}
	requestLogger(c, h.logger).Error(message, zap.String("report_id", c.Param("id")), zap.Error(err))
	writeError(c, http.StatusInternalServerError, message)
}

// parseLimit reads the limit query parameter. It writes a 400 and returns
// false when the value is not a positive integer.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		writeError(c, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(limit, maxListLimit), true
}
