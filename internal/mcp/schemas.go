package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Argument bounds
const (
	maxComposeResults  = 20
	maxRetrieveResults = 50
	defaultRetrieve    = 5
)

// composeIndustryNewsTool returns the tool definition for compose_industry_news
func composeIndustryNewsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "compose_industry_news",
		Description: "Find, index and summarise recent industry news for a company, grouped by focus point",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"company": map[string]interface{}{
					"type":        "string",
					"description": "Company name, e.g. 'Tesla'",
				},
				"focus_points": map[string]interface{}{
					"type":        "array",
					"description": "Topics of interest, e.g. ['battery technology', 'pricing']",
					"items": map[string]interface{}{
						"type": "string",
					},
					"minItems": 1,
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional session id; derived from the current time when omitted",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Articles per focus point (1-20)",
					"default":     5,
					"minimum":     1,
					"maximum":     maxComposeResults,
				},
				"time_period": map[string]interface{}{
					"type":        "string",
					"description": "Time window descriptor added to retrieval queries",
					"default":     "last_month",
				},
			},
			Required: []string{"company", "focus_points"},
		},
	}
}

// retrieveNewsTool returns the tool definition for retrieve_news
func retrieveNewsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "retrieve_news",
		Description: "Search already indexed news chunks with a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-50)",
					"default":     defaultRetrieve,
					"minimum":     1,
					"maximum":     maxRetrieveResults,
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Only return chunks indexed by this session",
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Only return chunks indexed for this focus point",
				},
			},
			Required: []string{"query"},
		},
	}
}

// getSessionTool returns the tool definition for get_session
func getSessionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_session",
		Description: "Look up a past composition session by id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session id, e.g. session_20250101_120000",
				},
			},
			Required: []string{"session_id"},
		},
	}
}

// getIndexStatusTool returns the tool definition for get_index_status
func getIndexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_index_status",
		Description: "Report vector index size, backend and embedding configuration",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Count only the chunks of this session",
				},
			},
		},
	}
}
