package model

const (
	OriginUpload = "upload"
	OriginSync   = "sync"
)

type Document struct {
	ID       string   `json:"id"`
	Domain   string   `json:"domain"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags"`
	ChunkIDs []string `json:"chunk_ids"`
	Origin   string   `json:"origin"`
	Ctime    int64    `json:"ctime"`
}
