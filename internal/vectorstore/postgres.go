package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/classmate/internal/pkg/dbutil"
)

type postgresStore struct {
	db    *sql.DB
	table string
	dims  int
}

func init() {
	Register("postgres", createPostgresStore)
}

func createPostgresStore(ctx context.Context, opts Options) (Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("postgres vector store requires a database")
	}
	if err := ensureMeta(ctx, opts.DB, "postgres", opts); err != nil {
		return nil, err
	}
	s := &postgresStore{db: opts.DB, table: "chunks_" + opts.Collection, dims: opts.Dimensions}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *postgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED,
			ctime BIGINT NOT NULL
		)`, s.table, s.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_filename ON %s (filename, ordinal)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_tsv ON %s USING gin (tsv)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create chunk schema: %w", err)
		}
	}
	return nil
}

func (s *postgresStore) Upsert(ctx context.Context, filename string, chunks []Chunk) error {
	if err := checkChunks(chunks, s.dims); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	upsert := fmt.Sprintf(`
		INSERT INTO %s (id, filename, ordinal, content, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			ordinal = EXCLUDED.ordinal,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`, s.table)
	now := time.Now().Unix()
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, upsert, ChunkID(filename, c.Ordinal), filename, c.Ordinal, c.Text, pgvector.NewVector(c.Embedding), now); err != nil {
			return fmt.Errorf("upsert chunk %d: %w", c.Ordinal, err)
		}
	}
	sqlStr, args, err := builder.BuildDelete(s.table, staleWhere(filename, chunks))
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}
	return tx.Commit()
}

func (s *postgresStore) Query(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	if err := checkQuery(vec, s.dims); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT filename, ordinal, content, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, filename, ordinal
		LIMIT $2
	`, s.table)
	return s.queryHits(ctx, k, query, pgvector.NewVector(vec), k)
}

func (s *postgresStore) KeywordSearch(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 || query == "" {
		return []Hit{}, nil
	}
	stmt := fmt.Sprintf(`
		SELECT filename, ordinal, content, ts_rank(tsv, plainto_tsquery('simple', $1)) AS score
		FROM %s
		WHERE tsv @@ plainto_tsquery('simple', $1)
		ORDER BY score DESC, filename, ordinal
		LIMIT $2
	`, s.table)
	return s.queryHits(ctx, k, stmt, query, k)
}

func (s *postgresStore) queryHits(ctx context.Context, k int, query string, args ...interface{}) ([]Hit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	hits := make([]Hit, 0, k)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Filename, &h.Ordinal, &h.Text, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankHits(hits, k), nil
}

func (s *postgresStore) Count(ctx context.Context, filename string) (int, error) {
	where := map[string]interface{}{}
	if filename != "" {
		where["filename"] = filename
	}
	sqlStr, args, err := builder.BuildSelect(s.table, where, []string{"count(*)"})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var n int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *postgresStore) Delete(ctx context.Context, filename string) error {
	sqlStr, args, err := builder.BuildDelete(s.table, map[string]interface{}{"filename": filename})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// Close leaves the shared database open.
func (s *postgresStore) Close() error {
	return nil
}
