package model

// Query lives for the duration of one request; only the cache entry it may
// produce outlasts it.
type Query struct {
	Text      string    `json:"text"`
	Domain    string    `json:"domain"`
	Embedding []float32 `json:"-"`
	Tier      string    `json:"tier"`
	CacheKey  string    `json:"-"`
}

type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	Score      float64 `json:"score"`
}

type Answer struct {
	Text         string     `json:"text"`
	Citations    []Citation `json:"citations"`
	Cached       bool       `json:"cached"`
	Tier         string     `json:"tier"`
	Cost         float64    `json:"approximate_cost"`
	Degraded     bool       `json:"degraded,omitempty"`
	Refused      bool       `json:"refused,omitempty"`
	ElapsedMs    int64      `json:"elapsed_ms"`
	InputTokens  int64      `json:"input_tokens,omitempty"`
	OutputTokens int64      `json:"output_tokens,omitempty"`
}
