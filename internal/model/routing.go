package model

const (
	TierCheap   = "cheap"
	TierCapable = "capable"
)

// RoutingDecision is derived per query and never persisted.
type RoutingDecision struct {
	Domain        string `json:"domain"`
	WordCount     int    `json:"word_count"`
	SentenceCount int    `json:"sentence_count"`
	Technical     bool   `json:"technical"`
	MultiQuestion bool   `json:"multi_question"`
	Conditional   bool   `json:"conditional"`
	Score         int    `json:"score"`
	Tier          string `json:"tier"`
}
