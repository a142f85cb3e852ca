package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/pkg/dbutil"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) BatchCreate(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	const query = `
		INSERT INTO chunks (id, document_id, domain, content, tags_json, source_json, position, ctime, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			tags_json = EXCLUDED.tags_json,
			source_json = EXCLUDED.source_json,
			position = EXCLUDED.position,
			embedding = EXCLUDED.embedding
	`
	for _, chunk := range chunks {
		tagsJSON, _ := json.Marshal(chunk.Tags)
		sourceJSON := ""
		if chunk.Source != nil {
			raw, _ := json.Marshal(chunk.Source)
			sourceJSON = string(raw)
		}
		_, err := r.db.ExecContext(ctx, query,
			chunk.ID,
			chunk.DocumentID,
			chunk.Domain,
			chunk.Content,
			string(tagsJSON),
			sourceJSON,
			chunk.Position,
			chunk.Ctime,
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}
	return nil
}

func (r *ChunkRepo) ListByDocument(ctx context.Context, docID string) ([]*model.Chunk, error) {
	where := map[string]interface{}{
		"document_id": docID,
		"_orderby":    "position asc",
	}
	return r.list(ctx, where)
}

func (r *ChunkRepo) ListAll(ctx context.Context) ([]*model.Chunk, error) {
	where := map[string]interface{}{
		"_orderby": "ctime asc",
	}
	return r.list(ctx, where)
}

func (r *ChunkRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.Chunk, error) {
	fields := []string{"id", "document_id", "domain", "content", "tags_json", "source_json", "position", "ctime", "embedding"}
	sqlStr, args, err := builder.BuildSelect("chunks", where, fields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	chunks := make([]*model.Chunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows, false)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, docID string) (int64, error) {
	sqlStr, args := dbutil.Finalize("DELETE FROM chunks WHERE document_id=?", []interface{}{docID})
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SearchByEmbedding runs the pgvector cosine scan and returns chunks with
// their raw distance, nearest first.
func (r *ChunkRepo) SearchByEmbedding(ctx context.Context, embedding []float32, domain string, limit int) ([]*model.Chunk, []float64, error) {
	query := `
		SELECT id, document_id, domain, content, tags_json, source_json, position, ctime, embedding, embedding <=> $1 AS distance
		FROM chunks
	`
	args := []interface{}{pgvector.NewVector(embedding)}
	if domain != "" {
		query += ` WHERE domain = $2 ORDER BY embedding <=> $1 LIMIT $3`
		args = append(args, domain, limit)
	} else {
		query += ` ORDER BY embedding <=> $1 LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	chunks := make([]*model.Chunk, 0, limit)
	distances := make([]float64, 0, limit)
	for rows.Next() {
		chunk, distance, err := scanChunkWithDistance(rows)
		if err != nil {
			return nil, nil, err
		}
		chunks = append(chunks, chunk)
		distances = append(distances, distance)
	}
	return chunks, distances, rows.Err()
}

func (r *ChunkRepo) Count(ctx context.Context) (int, error) {
	sqlStr, args := dbutil.Finalize("SELECT COUNT(1) FROM chunks", nil)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanChunk(rows *sql.Rows, withDistance bool) (*model.Chunk, error) {
	chunk, _, err := scanChunkFields(rows, withDistance)
	return chunk, err
}

func scanChunkWithDistance(rows *sql.Rows) (*model.Chunk, float64, error) {
	return scanChunkFields(rows, true)
}

func scanChunkFields(rows *sql.Rows, withDistance bool) (*model.Chunk, float64, error) {
	var chunk model.Chunk
	var tagsJSON, sourceJSON string
	var embedding pgvector.Vector
	var distance float64
	dest := []interface{}{
		&chunk.ID, &chunk.DocumentID, &chunk.Domain, &chunk.Content,
		&tagsJSON, &sourceJSON, &chunk.Position, &chunk.Ctime, &embedding,
	}
	if withDistance {
		dest = append(dest, &distance)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, 0, err
	}
	chunk.Embedding = embedding.Slice()
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &chunk.Tags)
	}
	if sourceJSON != "" {
		var src model.SourceRef
		if err := json.Unmarshal([]byte(sourceJSON), &src); err == nil {
			chunk.Source = &src
		}
	}
	return &chunk, distance, nil
}
