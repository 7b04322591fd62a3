package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Reindexer interface {
	Reindex(ctx context.Context) (int, error)
}

// ReindexJob indexes uploads that were stored while indexing failed.
type ReindexJob struct {
	docs Reindexer
}

func NewReindexJob(docs Reindexer) *ReindexJob {
	return &ReindexJob{docs: docs}
}

func (j *ReindexJob) Name() string {
	return "reindex"
}

func (j *ReindexJob) Run(ctx context.Context) error {
	if j.docs == nil {
		return nil
	}
	n, err := j.docs.Reindex(ctx)
	if n > 0 {
		logutil.GetLogger(ctx).Info("documents reindexed", zap.Int("count", n))
	}
	return err
}
