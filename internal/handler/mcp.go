package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/gin-gonic/gin"
	"github.com/medilens/internal/domain"
	"github.com/medilens/internal/service"
	"go.uber.org/zap"
)

// MCP tool names.
const (
	ToolAnalyzeReport = "analyze_report"
	ToolHealthQuery   = "health_query"
	ToolSummarize     = "summarize"
)

type toolFunc func(c *gin.Context, req *protocol.CallToolRequest) (any, error)

// MCPHandler exposes the use cases as MCP tools. Each tool answers with the
// Result JSON in a single text content block.
type MCPHandler struct {
	tools  map[string]toolFunc
	logger *zap.Logger
}

// NewMCPHandler creates a new MCPHandler.
func NewMCPHandler(reports *service.Reports, assistant *service.Assistant, analyzer *service.Analyzer, logger *zap.Logger) *MCPHandler {
	h := &MCPHandler{logger: logger.Named("mcp_handler")}
	h.tools = map[string]toolFunc{
		ToolAnalyzeReport: func(c *gin.Context, req *protocol.CallToolRequest) (any, error) {
			var params domain.AnalyzeReportRequest
			if err := extractParams(req, &params); err != nil {
				return nil, err
			}
			return reports.Analyze(c.Request.Context(), params), nil
		},
		ToolHealthQuery: func(c *gin.Context, req *protocol.CallToolRequest) (any, error) {
			var params domain.HealthQueryRequest
			if err := extractParams(req, &params); err != nil {
				return nil, err
			}
			return assistant.Ask(c.Request.Context(), params.SessionID, params.Query), nil
		},
		ToolSummarize: func(c *gin.Context, req *protocol.CallToolRequest) (any, error) {
			var params domain.SummarizeRequest
			if err := extractParams(req, &params); err != nil {
				return nil, err
			}
			return analyzer.Summarize(c.Request.Context(), params.Text), nil
		},
	}
	return h
}

// Handle processes POST /mcp tool calls.
func (h *MCPHandler) Handle(c *gin.Context) {
	logger := requestLogger(c, h.logger)

	var request protocol.CallToolRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&request); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	tool, ok := h.tools[request.Name]
	if !ok {
		logger.Warn("unknown tool", zap.String("tool", request.Name))
		writeError(c, http.StatusNotFound, fmt.Sprintf("Unknown tool: %s", request.Name))
		return
	}

	out, err := tool(c, &request)
	if err != nil {
		logger.Warn("invalid tool arguments", zap.String("tool", request.Name), zap.Error(err))
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := textResult(out)
	if err != nil {
		logger.Error("failed to encode tool result", zap.String("tool", request.Name), zap.Error(err))
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("tool call completed", zap.String("tool", request.Name))
	c.JSON(http.StatusOK, result)
}

// extractParams decodes the request arguments into target.
func extractParams(req *protocol.CallToolRequest, target any) error {
	raw, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", req.Name, err)
	}
	return nil
}

func textResult(data any) (*protocol.CallToolResult, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(b),
			},
		},
	}, nil
}
