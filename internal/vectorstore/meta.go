package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/classmate/internal/model"
	"github.com/xxxsen/classmate/internal/repo"
)

// ensureMeta records the embedding model of a new index and refuses to open
// an existing index built with another model or dimension.
func ensureMeta(ctx context.Context, db *sql.DB, driver string, opts Options) error {
	r := repo.NewIndexMetaRepo(db, driver)
	meta, ok, err := r.Get(ctx, opts.Collection)
	if err != nil {
		return fmt.Errorf("read index meta: %w", err)
	}
	if !ok {
		createErr := r.Create(ctx, &model.IndexMeta{
			Name:       opts.Collection,
			ModelName:  opts.ModelName,
			Dimensions: opts.Dimensions,
			Metric:     MetricCosine,
			Ctime:      time.Now().Unix(),
		})
		if createErr == nil {
			return nil
		}
		meta, ok, err = r.Get(ctx, opts.Collection)
		if err != nil || !ok {
			return fmt.Errorf("create index meta: %w", createErr)
		}
	}
	if meta.Dimensions != opts.Dimensions {
		return fmt.Errorf("%w: index %s was built with %d dimensions, embedder produces %d", ErrDimensionMismatch, opts.Collection, meta.Dimensions, opts.Dimensions)
	}
	if opts.ModelName != "" && meta.ModelName != opts.ModelName {
		return fmt.Errorf("%w: index %s was built with %s, embedder is %s", ErrModelMismatch, opts.Collection, meta.ModelName, opts.ModelName)
	}
	return nil
}
