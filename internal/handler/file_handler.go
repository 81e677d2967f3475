package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/voicerag/internal/filestore"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".aac":  "audio/aac",
	".flac": "audio/flac",
}

type FileHandler struct {
	store filestore.Store
}

func NewFileHandler(store filestore.Store) *FileHandler {
	return &FileHandler{store: store}
}

func (h *FileHandler) Get(c *gin.Context) {
	key := c.Param("key")
	if key == "" || strings.ContainsAny(key, `/\`) {
		c.Status(http.StatusBadRequest)
		return
	}
	file, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		handleError(c, err)
		return
	}
	defer file.Close()
	c.Header("Content-Type", contentTypeOf(key))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}

func contentTypeOf(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if ct, ok := audioTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
