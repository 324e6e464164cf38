package storage

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineDistance is 1 - cosine similarity, in [0, 2]. A zero vector is at
// distance 1 from everything.
func cosineDistance(a, b []float32) float64 {
	return 1 - cosineSimilarity(a, b)
}

// candidate represents an entry with its distance from the query
type candidate struct {
	chunkID  string
	text     string
	metadata types.ChunkMetadata
	distance float64
}

// sortCandidates orders candidates nearest first, ties by chunk id
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})
}

// topMatches sorts candidates and returns the first k as matches
func topMatches(candidates []candidate, k int) []Match {
	sortCandidates(candidates)
	if k > len(candidates) {
		k = len(candidates)
	}
	matches := make([]Match, k)
	for i := 0; i < k; i++ {
		matches[i] = Match{
			ChunkID:  candidates[i].chunkID,
			Text:     candidates[i].text,
			Metadata: candidates[i].metadata,
			Distance: candidates[i].distance,
		}
	}
	return matches
}
