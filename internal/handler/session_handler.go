package handler

import (
	"bytes"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"

	"github.com/xxxsen/voicerag/internal/model"
	"github.com/xxxsen/voicerag/internal/pkg/response"
	"github.com/xxxsen/voicerag/internal/service"
)

type SessionHandler struct {
	chat *service.ChatService
	md   goldmark.Markdown
}

func NewSessionHandler(chat *service.ChatService) *SessionHandler {
	return &SessionHandler{chat: chat, md: goldmark.New()}
}

type sessionSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Messages int    `json:"messages"`
	Ctime    int64  `json:"ctime"`
	Mtime    int64  `json:"mtime"`
}

type messageView struct {
	model.Message
	HTML string `json:"html"`
}

type sessionView struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Messages []messageView `json:"messages"`
	Ctime    int64         `json:"ctime"`
	Mtime    int64         `json:"mtime"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	sess, err := h.chat.CreateSession(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, sess)
}

func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.chat.ListSessions(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	out := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionSummary{ID: s.ID, Name: s.Name, Messages: len(s.Messages), Ctime: s.Ctime, Mtime: s.Mtime})
	}
	response.Success(c, gin.H{"sessions": out})
}

func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.chat.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	view := sessionView{
		ID:       sess.ID,
		Name:     sess.Name,
		Messages: make([]messageView, 0, len(sess.Messages)),
		Ctime:    sess.Ctime,
		Mtime:    sess.Mtime,
	}
	for _, msg := range sess.Messages {
		view.Messages = append(view.Messages, messageView{Message: msg, HTML: h.render(msg.Content)})
	}
	response.Success(c, view)
}

// render turns message markdown into HTML for display. Raw HTML in the
// source is dropped.
func (h *SessionHandler) render(content string) string {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(content), &buf); err != nil {
		return ""
	}
	return buf.String()
}
