package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/newsdigest-mcp/internal/composer"
	"github.com/dshills/newsdigest-mcp/internal/searcher"
	"github.com/dshills/newsdigest-mcp/internal/storage"
	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams         = -32602 // Invalid method parameters
	ErrorCodeInternalError         = -32603 // Internal JSON-RPC error
	ErrorCodeCompositionInProgress = -32002 // Another composition is already running
	ErrorCodeEmbeddingFailed       = -32003 // Query could not be embedded
	ErrorCodeEmptyQuery            = -32004 // Query parameter is empty
)

// handleComposeIndustryNews handles the compose_industry_news tool invocation.
// A failed composition is not a protocol error: the error envelope is
// returned as the tool result.
func (s *Server) handleComposeIndustryNews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	company, ok := args["company"].(string)
	if !ok || strings.TrimSpace(company) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "company parameter is required", map[string]interface{}{
			"param":  "company",
			"reason": "missing or empty",
		})
	}

	focusPoints, err := getStringList(args, "focus_points")
	if err != nil || len(focusPoints) == 0 {
		reason := "missing or empty"
		if err != nil {
			reason = err.Error()
		}
		return nil, newMCPError(ErrorCodeInvalidParams, "focus_points parameter is required", map[string]interface{}{
			"param":  "focus_points",
			"reason": reason,
		})
	}

	maxResults := getIntDefault(args, "max_results", 0)
	if maxResults < 0 || maxResults > maxComposeResults {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("max_results must be between 1 and %d", maxComposeResults), map[string]interface{}{
			"param": "max_results",
			"value": maxResults,
		})
	}

	if !s.lock.TryAcquire() {
		return nil, newMCPError(ErrorCodeCompositionInProgress, "a composition is already running", nil)
	}
	defer s.lock.Release()

	res := s.app.Composer.Compose(ctx, composer.Request{
		Company:     company,
		FocusPoints: focusPoints,
		SessionID:   getStringDefault(args, "session_id", ""),
		MaxResults:  maxResults,
		TimePeriod:  getStringDefault(args, "time_period", ""),
	})

	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to encode report", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if res.Failed() {
		return mcp.NewToolResultError(string(body)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

// handleRetrieveNews handles the retrieve_news tool invocation
func (s *Server) handleRetrieveNews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", defaultRetrieve)
	if limit < 1 || limit > maxRetrieveResults {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxRetrieveResults), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	filter := &storage.Filter{
		SessionID: getStringDefault(args, "session_id", ""),
		Category:  getStringDefault(args, "category", ""),
	}
	if filter.IsEmpty() {
		filter = nil
	}

	start := time.Now()
	results, err := s.app.Searcher.Retrieve(ctx, searcher.RetrieveRequest{
		Query:    query,
		Limit:    limit,
		Filter:   filter,
		UseCache: true,
	})
	if err != nil {
		code := ErrorCodeInternalError
		if errors.Is(err, types.ErrEmbedding) {
			code = ErrorCodeEmbeddingFailed
		}
		return nil, newMCPError(code, "retrieval failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	items := make([]map[string]interface{}, 0, len(results))
	for i, r := range results {
		items = append(items, map[string]interface{}{
			"rank":            i + 1,
			"chunk_id":        r.ChunkID,
			"title":           r.Metadata.Title,
			"url":             r.Metadata.Link,
			"relevance_score": r.RelevanceScore,
			"snippet":         r.Metadata.Snippet,
			"text_snippet":    types.TextSnippet(r.Text),
			"session_id":      r.Metadata.SessionID,
			"category":        r.Metadata.Category,
		})
	}

	response := map[string]interface{}{
		"query":         query,
		"results":       items,
		"total_results": len(items),
		"duration_ms":   time.Since(start).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetSession handles the get_session tool invocation
func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["session_id"].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "session_id parameter is required", map[string]interface{}{
			"param":  "session_id",
			"reason": "missing or empty",
		})
	}

	sess, found := s.app.History.Get(id)
	if !found {
		response := map[string]interface{}{
			"found":      false,
			"session_id": id,
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	response := map[string]interface{}{
		"found":        true,
		"session_id":   sess.SessionID,
		"timestamp":    sess.Timestamp.Format(time.RFC3339),
		"company":      sess.Company,
		"industry":     sess.Industry,
		"focus_points": sess.FocusPoints,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetIndexStatus handles the get_index_status tool invocation
func (s *Server) handleGetIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	var filter *storage.Filter
	if id := getStringDefault(args, "session_id", ""); id != "" {
		filter = &storage.Filter{SessionID: id}
	}

	status, err := storage.Describe(ctx, s.app.Index, filter)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get index status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	index := map[string]interface{}{
		"backend": status.Backend,
		"chunks":  status.Chunks,
	}
	if status.BuildMode != "" {
		index["build_mode"] = status.BuildMode
	}
	if status.SchemaVersion != "" {
		index["schema_version"] = status.SchemaVersion
	}
	if filter != nil {
		index["session_id"] = filter.SessionID
	}

	emb := s.app.Embedder
	response := map[string]interface{}{
		"server": map[string]interface{}{
			"name":    ServerName,
			"version": ServerVersion,
		},
		"index": index,
		"embedding": map[string]interface{}{
			"provider":  emb.Provider(),
			"model":     emb.Model(),
			"dimension": emb.Dimension(),
		},
		"sessions":                s.app.History.Len(),
		"composition_in_progress": s.lock.Held(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return strings.TrimSpace(val)
	}
	return defaultValue
}

// getStringList accepts a JSON array of strings or a comma separated string.
// Blank entries are dropped.
func getStringList(args map[string]interface{}, key string) ([]string, error) {
	var raw []string
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	case []interface{}:
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d is not a string", i)
			}
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("must be an array of strings")
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
