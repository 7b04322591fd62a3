package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/classmate/internal/pkg/errcode"
	"github.com/xxxsen/classmate/internal/pkg/response"
	"github.com/xxxsen/classmate/internal/service"
)

type DocumentHandler struct {
	documents   *service.DocumentService
	uploadLimit int64
}

func NewDocumentHandler(documents *service.DocumentService, uploadLimit int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, uploadLimit: uploadLimit}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.uploadLimit > 0 && file.Size > h.uploadLimit {
		response.Error(c, errcode.ErrFileTooLarge, fmt.Sprintf("file too large, max %dMB", megabytes(h.uploadLimit)))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()

	res, err := h.documents.Upload(c.Request.Context(), service.UploadInput{
		Filename: file.Filename,
		Size:     file.Size,
		Reader:   opened,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"documents": docs})
}

func (h *DocumentHandler) Explain(c *gin.Context) {
	res, err := h.documents.Explain(c.Request.Context(), c.Param("filename"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *DocumentHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	res, err := h.documents.Ask(c.Request.Context(), c.Param("filename"), req.Question)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), c.Param("filename")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

// megabytes rounds n up to whole megabytes.
func megabytes(n int64) int64 {
	const mb = 1024 * 1024
	return (n + mb - 1) / mb
}
