package model

// EmbeddingCache rows let repeated texts reuse a previously computed vector.
type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
	Expiry      int64     `json:"expiry"`
}
