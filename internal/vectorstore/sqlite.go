package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/classmate/internal/pkg/textutil"
)

// sqliteStore keeps vectors as JSON text and scores them in process. It
// suits single node installs with a few thousand chunks.
type sqliteStore struct {
	db    *sql.DB
	table string
	dims  int
}

func init() {
	Register("sqlite", createSQLiteStore)
}

func createSQLiteStore(ctx context.Context, opts Options) (Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("sqlite vector store requires a database")
	}
	if err := ensureMeta(ctx, opts.DB, "sqlite", opts); err != nil {
		return nil, err
	}
	s := &sqliteStore{db: opts.DB, table: "chunks_" + opts.Collection, dims: opts.Dimensions}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			ctime INTEGER NOT NULL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_filename ON %s (filename, ordinal)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := opts.DB.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create chunk schema: %w", err)
		}
	}
	return s, nil
}

func (s *sqliteStore) Upsert(ctx context.Context, filename string, chunks []Chunk) error {
	if err := checkChunks(chunks, s.dims); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	now := time.Now().Unix()
	for _, c := range chunks {
		blob, err := json.Marshal(c.Embedding)
		if err != nil {
			return err
		}
		data := map[string]interface{}{
			"id":        ChunkID(filename, c.Ordinal),
			"filename":  filename,
			"ordinal":   c.Ordinal,
			"content":   c.Text,
			"embedding": string(blob),
			"ctime":     now,
		}
		sqlStr, args, err := builder.BuildReplaceInsert(s.table, []map[string]interface{}{data})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("upsert chunk %d: %w", c.Ordinal, err)
		}
	}
	sqlStr, args, err := builder.BuildDelete(s.table, staleWhere(filename, chunks))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}
	return tx.Commit()
}

func (s *sqliteStore) Query(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	if err := checkQuery(vec, s.dims); err != nil {
		return nil, err
	}
	sqlStr, args, err := builder.BuildSelect(s.table, nil, []string{"filename", "ordinal", "content", "embedding"})
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	hits := make([]Hit, 0)
	for rows.Next() {
		var h Hit
		var blob string
		if err := rows.Scan(&h.Filename, &h.Ordinal, &h.Text, &blob); err != nil {
			return nil, err
		}
		var emb []float32
		if err := json.Unmarshal([]byte(blob), &emb); err != nil {
			return nil, fmt.Errorf("decode embedding of %s: %w", ChunkID(h.Filename, h.Ordinal), err)
		}
		h.Score = cosineSimilarity(vec, emb)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankHits(hits, k), nil
}

func (s *sqliteStore) KeywordSearch(ctx context.Context, query string, k int) ([]Hit, error) {
	tokens := textutil.Tokenize(query)
	if k <= 0 || len(tokens) == 0 {
		return []Hit{}, nil
	}
	or := make([]map[string]interface{}, 0, len(tokens))
	for _, tok := range tokens {
		or = append(or, map[string]interface{}{"content like": "%" + tok + "%"})
	}
	where := map[string]interface{}{"_or": or}
	sqlStr, args, err := builder.BuildSelect(s.table, where, []string{"filename", "ordinal", "content"})
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	hits := make([]Hit, 0)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Filename, &h.Ordinal, &h.Text); err != nil {
			return nil, err
		}
		if h.Score = textutil.Overlap(tokens, h.Text); h.Score > 0 {
			hits = append(hits, h)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankHits(hits, k), nil
}

func (s *sqliteStore) Count(ctx context.Context, filename string) (int, error) {
	where := map[string]interface{}{}
	if filename != "" {
		where["filename"] = filename
	}
	sqlStr, args, err := builder.BuildSelect(s.table, where, []string{"count(*)"})
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqliteStore) Delete(ctx context.Context, filename string) error {
	sqlStr, args, err := builder.BuildDelete(s.table, map[string]interface{}{"filename": filename})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// Close leaves the shared database open.
func (s *sqliteStore) Close() error {
	return nil
}
