// Package types provides shared type definitions for the news digest pipeline.
//
// The types here flow through every stage of a composition run:
//
//	SearchHit  -> Article         (search collaborator, tagged with a focus point)
//	Article    -> Chunk           (ingestion: fetch, clean, split, embed)
//	Chunk      -> RetrievalResult (vector index query)
//	[]Result   -> Report          (composition, one FocusSummary per focus point)
//
// # Chunks and Metadata
//
// A Chunk carries a ChunkMetadata record copied from its parent Article plus
// the session and category it was ingested under:
//
//	chunk := types.Chunk{
//	    ChunkID:   ids.New(),
//	    ArticleID: articleID,
//	    Text:      window,
//	    Metadata: types.ChunkMetadata{
//	        Link:      article.URL,
//	        Title:     article.Title,
//	        SessionID: sessionID,
//	        Category:  article.FocusPoint,
//	        ArticleID: articleID,
//	    },
//	}
//
// # Relevance
//
// RetrievalResult.RelevanceScore is always 1 - Distance. It is a meaningful
// "higher is better" score only while the index distance stays inside [0, 1],
// which holds for cosine distance over non-negative embedding spaces. The
// score is never clamped.
//
// # Errors
//
// errors.go defines the error taxonomy shared by all packages. Each typed
// error matches a sentinel through errors.Is, so callers can branch on the
// category without caring about the concrete wrapper:
//
//	if errors.Is(err, types.ErrKeywordExtraction) {
//	    // fatal for the run
//	}
package types
