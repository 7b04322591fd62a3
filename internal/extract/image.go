package extract

import (
	"context"
	"net/http"
	"os"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const ocrUnavailablePrefix = "OCR unavailable: "

// extractImage never fails. Without a working transcriber the text describes
// why no OCR happened so the upload can still be indexed.
func (e *Extractor) extractImage(ctx context.Context, path string) string {
	if e.transcriber == nil {
		return ocrUnavailablePrefix + "no vision model configured"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ocrUnavailablePrefix + err.Error()
	}
	text, err := e.transcriber.Transcribe(ctx, data, http.DetectContentType(data))
	if err != nil {
		logutil.GetLogger(ctx).Warn("image transcription failed", zap.String("path", path), zap.Error(err))
		return ocrUnavailablePrefix + err.Error()
	}
	return text
}
