package model

// Chunk is one retrievable unit of rulebook text. Page is nil when the
// source has no page information; page 0 is a valid page.
type Chunk struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	Source string    `json:"source"`
	Page   *int      `json:"page,omitempty"`
	Offset int       `json:"offset"`
	Vector []float32 `json:"-"`
}

// RetrievedChunk is a chunk returned by a similarity search, with its
// cosine similarity score in [-1, 1].
type RetrievedChunk struct {
	ChunkID string  `json:"chunk_id"`
	Text    string  `json:"text"`
	Source  string  `json:"source"`
	Page    *int    `json:"page,omitempty"`
	Score   float64 `json:"score"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
