package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/pkg/dbutil"
	appErr "github.com/ragline/ragline/internal/pkg/errors"
)

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

var documentFields = []string{"id", "domain", "title", "tags_json", "origin", "ctime"}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	tagsJSON, _ := json.Marshal(doc.Tags)
	data := map[string]interface{}{
		"id":        doc.ID,
		"domain":    doc.Domain,
		"title":     doc.Title,
		"tags_json": string(tagsJSON),
		"origin":    doc.Origin,
		"ctime":     doc.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id": docID,
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanDocument(rows)
}

func (r *DocumentRepo) ListAll(ctx context.Context) ([]*model.Document, error) {
	where := map[string]interface{}{
		"_orderby": "ctime asc",
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]*model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) Delete(ctx context.Context, docID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM documents WHERE id=?", []interface{}{docID})
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) Count(ctx context.Context) (int, error) {
	sqlStr, args := dbutil.Finalize("SELECT COUNT(1) FROM documents", nil)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanDocument(rows *sql.Rows) (*model.Document, error) {
	var doc model.Document
	var tagsJSON string
	if err := rows.Scan(&doc.ID, &doc.Domain, &doc.Title, &tagsJSON, &doc.Origin, &doc.Ctime); err != nil {
		return nil, err
	}
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &doc.Tags)
	}
	return &doc, nil
}
