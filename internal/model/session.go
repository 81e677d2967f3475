package model

const DefaultSessionName = "New Chat"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Ctime   int64  `json:"ctime"`
}

type ChatSession struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
	Ctime    int64     `json:"ctime"`
	Mtime    int64     `json:"mtime"`
}

// Clone returns a deep copy so callers can never reach into store state.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		copy(out.Messages, s.Messages)
	}
	return &out
}
