package types

// RetrievalResult is one ranked neighbour returned by the retrieval service.
type RetrievalResult struct {
	ChunkID        string        `json:"chunk_id"`
	Text           string        `json:"text"`
	Metadata       ChunkMetadata `json:"metadata"`
	Distance       float64       `json:"distance"`
	RelevanceScore float64       `json:"relevance_score"`
}

// NewRetrievalResult derives the relevance score from distance. The score is
// only "higher is better" while distance stays in [0, 1]; it is not clamped.
func NewRetrievalResult(chunkID, text string, metadata ChunkMetadata, distance float64) RetrievalResult {
	return RetrievalResult{
		ChunkID:        chunkID,
		Text:           text,
		Metadata:       metadata,
		Distance:       distance,
		RelevanceScore: RelevanceFromDistance(distance),
	}
}

// RelevanceFromDistance returns 1 - distance.
func RelevanceFromDistance(distance float64) float64 {
	return 1 - distance
}
