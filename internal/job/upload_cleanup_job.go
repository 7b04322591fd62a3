package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/classmate/internal/model"
)

// DocumentStore lists uploads and removes a document with its index entries.
// service.DocumentService implements it.
type DocumentStore interface {
	List(ctx context.Context) ([]model.UploadedDocument, error)
	Delete(ctx context.Context, filename string) error
}

// UploadCleanupJob removes uploads older than the retention period. A
// retention of 0 days keeps everything.
type UploadCleanupJob struct {
	docs          DocumentStore
	retentionDays int
	now           func() time.Time
}

func NewUploadCleanupJob(docs DocumentStore, retentionDays int) *UploadCleanupJob {
	return &UploadCleanupJob{docs: docs, retentionDays: retentionDays, now: time.Now}
}

func (j *UploadCleanupJob) Name() string {
	return "upload_cleanup"
}

func (j *UploadCleanupJob) Run(ctx context.Context) error {
	if j.docs == nil || j.retentionDays <= 0 {
		return nil
	}
	cutoff := j.now().Add(-time.Duration(j.retentionDays) * 24 * time.Hour).Unix()
	docs, err := j.docs.List(ctx)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	removed := 0
	for _, doc := range docs {
		if doc.Mtime >= cutoff {
			continue
		}
		if err := j.docs.Delete(ctx, doc.Filename); err != nil {
			logger.Warn("remove expired upload failed", zap.String("filename", doc.Filename), zap.Error(err))
			continue
		}
		removed++
	}
	logger.Info("expired uploads removed", zap.Int("removed", removed), zap.Int("retention_days", j.retentionDays))
	return nil
}
