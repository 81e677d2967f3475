package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/voicerag/internal/pkg/errcode"
	"github.com/xxxsen/voicerag/internal/pkg/response"
	"github.com/xxxsen/voicerag/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type askRequest struct {
	Query string `json:"query"`
}

func (h *ChatHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	res, err := h.chat.Ask(c.Request.Context(), c.Param("id"), req.Query)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}
