package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/classmate/internal/model"
	"github.com/xxxsen/classmate/internal/pkg/dbutil"
)

// EmbeddingCacheRepo stores vectors as pgvector values on postgres and as
// JSON text on sqlite.
type EmbeddingCacheRepo struct {
	db     *sql.DB
	driver string
}

func NewEmbeddingCacheRepo(db *sql.DB, driver string) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db, driver: driver}
}

func (r *EmbeddingCacheRepo) isPostgres() bool {
	return r.driver == "postgres"
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	where := map[string]interface{}{
		"model_name":   modelName,
		"task_type":    taskType,
		"content_hash": contentHash,
	}
	sqlStr, args, err := builder.BuildSelect("embedding_cache", where, []string{"embedding"})
	if err != nil {
		return nil, false, err
	}
	sqlStr, args = dbutil.FinalizeFor(r.driver, sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	if r.isPostgres() {
		var embedding pgvector.Vector
		if err := row.Scan(&embedding); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, false, nil
			}
			return nil, false, err
		}
		return embedding.Slice(), true, nil
	}
	var blob string
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var values []float32
	if err := json.Unmarshal([]byte(blob), &values); err != nil {
		return nil, false, err
	}
	return values, true, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	if r.isPostgres() {
		const query = `
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`
		_, err := r.db.ExecContext(ctx, query,
			item.ModelName,
			item.TaskType,
			item.ContentHash,
			pgvector.NewVector(item.Embedding),
			item.Ctime,
		)
		return err
	}
	blob, err := json.Marshal(item.Embedding)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"model_name":   item.ModelName,
		"task_type":    item.TaskType,
		"content_hash": item.ContentHash,
		"embedding":    string(blob),
		"ctime":        item.Ctime,
	}
	sqlStr, args, err := builder.BuildReplaceInsert("embedding_cache", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	where := map[string]interface{}{"ctime <": cutoff}
	sqlStr, args, err := builder.BuildDelete("embedding_cache", where)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.FinalizeFor(r.driver, sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
