// Package searcher implements the retrieval service: a text query is
// embedded with the same Embedder used at ingestion, the vector index
// returns the nearest chunks, and each is reported with
// RelevanceScore = 1 - Distance.
//
// The score is only meaningful as "higher is better" while distances stay
// within [0, 1]. Cosine distance can reach 2 for opposing vectors, giving a
// negative score; the value is reported as is.
//
// Results can be scoped with a storage.Filter on session id and category.
// An optional LRU query cache with a TTL avoids re-embedding repeated
// queries; call InvalidateCache after new chunks are indexed.
package searcher
