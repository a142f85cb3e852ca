package model

// CacheEntry is write-once; expired or evicted entries are replaced, never
// mutated in place.
type CacheEntry struct {
	Key       string     `json:"key"`
	Domain    string     `json:"domain"`
	Embedding []float32  `json:"embedding"`
	Response  string     `json:"response"`
	Citations []Citation `json:"citations"`
	Tier      string     `json:"tier"`
	Ctime     int64      `json:"ctime"`
	Expiry    int64      `json:"expiry"`
}

func (e *CacheEntry) Expired(now int64) bool {
	return e.Expiry > 0 && now >= e.Expiry
}
