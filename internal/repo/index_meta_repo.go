package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/classmate/internal/model"
	"github.com/xxxsen/classmate/internal/pkg/dbutil"
)

type IndexMetaRepo struct {
	db     *sql.DB
	driver string
}

func NewIndexMetaRepo(db *sql.DB, driver string) *IndexMetaRepo {
	return &IndexMetaRepo{db: db, driver: driver}
}

func (r *IndexMetaRepo) Get(ctx context.Context, name string) (*model.IndexMeta, bool, error) {
	where := map[string]interface{}{"name": name}
	sqlStr, args, err := builder.BuildSelect("index_meta", where, []string{"name", "model_name", "dimensions", "metric", "ctime"})
	if err != nil {
		return nil, false, err
	}
	sqlStr, args = dbutil.FinalizeFor(r.driver, sqlStr, args)
	var meta model.IndexMeta
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&meta.Name, &meta.ModelName, &meta.Dimensions, &meta.Metric, &meta.Ctime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &meta, true, nil
}

func (r *IndexMetaRepo) Create(ctx context.Context, meta *model.IndexMeta) error {
	data := map[string]interface{}{
		"name":       meta.Name,
		"model_name": meta.ModelName,
		"dimensions": meta.Dimensions,
		"metric":     meta.Metric,
		"ctime":      meta.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("index_meta", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.FinalizeFor(r.driver, sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
