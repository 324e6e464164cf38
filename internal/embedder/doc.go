// Package embedder turns text into fixed-length vectors for the vector index.
//
// Chunks at ingestion time and queries at retrieval time must be embedded by
// the same Embedder, otherwise distances are meaningless.
//
// # Providers
//
//   - googleai: Google embedding models through langchaingo (default, 768 dims)
//   - cohere:   Cohere v2 embed API (1024 dims)
//   - openai:   OpenAI /embeddings (1536 dims)
//   - jina:     Jina AI /embeddings (1024 dims)
//   - local:    hashed bag-of-words, no network (384 dims)
//
// # Basic Usage
//
//	emb, err := embedder.NewFromEnv(ctx)
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	vector, err := embedder.Embed(ctx, emb, chunkText, 30*time.Second)
//	if errors.Is(err, types.ErrEmbedding) {
//	    // skip this chunk
//	}
//
// # Caching
//
// Network providers share an LRU cache keyed by provider, model and the
// SHA-256 of the text. Get and Set copy vectors, so callers may mutate what
// they receive.
//
// # Retries
//
// Remote calls retry with exponential backoff (100ms doubling, capped at 5s,
// three attempts). Client errors other than 429 are permanent and fail
// immediately; context cancellation stops the loop.
package embedder
