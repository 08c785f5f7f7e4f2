package urlsearch

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MaxRecordedParamsLength is the max length of serialized arguments in a log line.
const MaxRecordedParamsLength = 1000

// RecordingMiddleware logs every tool call a server receives with its
// arguments, status and duration. Other methods pass through untouched.
func RecordingMiddleware(logger *slog.Logger) mcp.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			call, ok := req.(*mcp.CallToolRequest)
			if !ok || call.Params == nil {
				return next(ctx, method, req)
			}

			startedAt := time.Now()
			result, err := next(ctx, method, req)
			duration := time.Since(startedAt)

			status := "success"
			switch {
			case err != nil:
				status = "error"
			case isToolError(result):
				status = "tool_error"
			}

			logger.Info("Tool call",
				"tool", call.Params.Name,
				"params", truncate(string(call.Params.Arguments), MaxRecordedParamsLength),
				"status", status,
				"duration_ms", duration.Milliseconds(),
				"error", err)
			return result, err
		}
	}
}

func isToolError(result mcp.Result) bool {
	r, ok := result.(*mcp.CallToolResult)
	return ok && r != nil && r.IsError
}

func truncate(s string, maxLen int) string {
	if s == "" {
		return "{}"
	}
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
