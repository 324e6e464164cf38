// Package indexer implements the ingestion pipeline that turns search
// results into searchable chunks.
//
// For each article, in input order:
//
//  1. Fetch the cleaned text (skip the article on error or empty text).
//  2. Split it into overlapping windows with the chunker.
//  3. Assign one article id and a fresh chunk id per window.
//  4. Embed the windows concurrently, at most Config.Workers at a time.
//     A failed window is dropped; the rest of the article continues.
//  5. Write the embedded windows to the vector index in one batch.
//
// Ingestion is best effort. Skipped articles and chunks are counted in
// Statistics, logged at warn level and listed in Statistics.ErrorMessages.
// Only a run in which no article reaches the index is reported, through
// ErrNothingIndexed, and the partial Result is still returned.
//
// # Usage
//
//	idx, err := indexer.New(fetcher.NewReadability(), emb, index, indexer.DefaultConfig(),
//	    indexer.WithLogger(log))
//	if err != nil {
//	    return err // invalid chunk size or overlap
//	}
//	res, err := idx.Ingest(ctx, articles, sessionID)
package indexer
