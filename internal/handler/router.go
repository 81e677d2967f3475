package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/voicerag/internal/middleware"
)

type RouterDeps struct {
	Sessions    *SessionHandler
	Chat        *ChatHandler
	Documents   *DocumentHandler
	Files       *FileHandler
	Metrics     http.Handler
	ChatLimitMS int
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/sessions", deps.Sessions.List)
	api.POST("/sessions", deps.Sessions.Create)
	api.GET("/sessions/:id", deps.Sessions.Get)
	api.POST("/sessions/:id/messages",
		middleware.RateLimit(time.Duration(deps.ChatLimitMS)*time.Millisecond),
		deps.Chat.Ask,
	)

	api.POST("/documents", deps.Documents.Upload)
	api.GET("/documents", deps.Documents.List)

	api.GET("/files/:key", deps.Files.Get)
	if deps.Metrics != nil {
		api.GET("/metrics", gin.WrapH(deps.Metrics))
	}
}
