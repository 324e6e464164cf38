// Package mcp exposes the news digest pipeline as a Model Context Protocol
// server over stdio.
//
// Tools:
//   - compose_industry_news: run a full composition for a company and its
//     focus points and return the report (or the error envelope)
//   - retrieve_news: query the vector index directly
//   - get_session: look up a past session by id
//   - get_index_status: chunk counts, index backend and embedding setup
//
// # Tool: compose_industry_news
//
//	Request:
//	{
//	  "name": "compose_industry_news",
//	  "arguments": {
//	    "company": "Tesla",
//	    "focus_points": ["battery technology", "pricing"],
//	    "max_results": 5,
//	    "time_period": "last_month"
//	  }
//	}
//
//	Response:
//	{
//	  "company": "Tesla",
//	  "industry": "Automotive",
//	  "focus_points": ["battery technology", "pricing"],
//	  "session_id": "session_20250101_120000",
//	  "timestamp": "2025-01-01T12:00:00Z",
//	  "news_summary": [
//	    {
//	      "focus_point": "battery technology",
//	      "articles": [
//	        {
//	          "title": "...",
//	          "url": "https://...",
//	          "relevance_score": 0.82,
//	          "snippet": "...",
//	          "text_snippet": "..."
//	        }
//	      ]
//	    }
//	  ]
//	}
//
// A failed run answers {"error", "session_id", "timestamp"} with the tool
// result marked as an error. Only one composition runs at a time.
//
// # Error Handling
//
// Invalid arguments and infrastructure failures are JSON-RPC errors:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (index, encoding)
//   - -32002: Composition in progress
//   - -32003: Query embedding failed
//   - -32004: Empty query
//
// # Logging
//
// stdout carries the protocol, so all logging goes to stderr.
package mcp
