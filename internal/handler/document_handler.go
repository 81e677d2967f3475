package handler

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/voicerag/internal/pkg/errcode"
	"github.com/xxxsen/voicerag/internal/pkg/response"
	"github.com/xxxsen/voicerag/internal/service"
)

type DocumentHandler struct {
	ingest        *service.IngestService
	maxUploadSize int64
}

func NewDocumentHandler(ingest *service.IngestService, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, maxUploadSize: maxUploadSize}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		response.Error(c, errcode.ErrInvalidFile, "file too large (max "+formatUploadLimit(h.maxUploadSize)+")")
		return
	}
	if strings.ToLower(filepath.Ext(file.Filename)) != ".pdf" {
		response.Error(c, errcode.ErrInvalidFile, "pdf file required")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, errcode.ErrUploadFailed, "failed to read file")
		return
	}
	res, err := h.ingest.Ingest(c.Request.Context(), file.Filename, data)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *DocumentHandler) List(c *gin.Context) {
	response.Success(c, gin.H{"documents": h.ingest.Documents()})
}
