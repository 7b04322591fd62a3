package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/classmate/internal/ai"
	"github.com/xxxsen/classmate/internal/extract"
	"github.com/xxxsen/classmate/internal/middleware"
	"github.com/xxxsen/classmate/internal/pkg/errcode"
	appErr "github.com/xxxsen/classmate/internal/pkg/errors"
	"github.com/xxxsen/classmate/internal/pkg/response"
	"github.com/xxxsen/classmate/internal/vectorstore"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "file not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrTooLarge):
		response.Error(c, errcode.ErrFileTooLarge, "")
	case errors.Is(err, appErr.ErrUnsupportedType):
		response.Error(c, errcode.ErrInvalidFile, err.Error())
	case errors.Is(err, ai.ErrGateway):
		response.Error(c, errcode.ErrAIUnavailable, err.Error())
	case errors.Is(err, extract.ErrExtraction):
		response.Error(c, errcode.ErrExtractFailed, err.Error())
	case errors.Is(err, vectorstore.ErrIndexUnavailable):
		response.Error(c, errcode.ErrIndexUnavailable, "")
	default:
		response.Error(c, errcode.ErrInternal, "")
	}
}
