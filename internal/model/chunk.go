package model

type SourceRef struct {
	URI     string `json:"uri"`
	Section string `json:"section"`
	Page    int    `json:"page"`
}

type Chunk struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	Domain     string     `json:"domain"`
	Content    string     `json:"content"`
	Embedding  []float32  `json:"embedding"`
	Tags       []string   `json:"tags"`
	Source     *SourceRef `json:"source,omitempty"`
	Position   int        `json:"position"`
	Ctime      int64      `json:"ctime"`
}
