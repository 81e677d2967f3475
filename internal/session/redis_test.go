package session

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/voicerag/internal/config"
)

func TestRedisStore_Keys(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	st := newRedisStore(client, "")
	require.Equal(t, "voicerag:session:abc", st.metaKey("abc"))
	require.Equal(t, "voicerag:session:abc:messages", st.messagesKey("abc"))
	require.Equal(t, "voicerag:sessions", st.indexKey())

	st = newRedisStore(client, "app:")
	require.Equal(t, "app:sessions", st.indexKey())
}

func TestRedisStore_RequiresURL(t *testing.T) {
	_, err := New(config.SessionStoreConfig{Type: "redis", Data: map[string]interface{}{}})
	require.Error(t, err)
}

func TestDecodeMessages(t *testing.T) {
	msgs, err := decodeMessages([]string{`{"role":"user","content":"hi","ctime":1}`})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hi", msgs[0].Content)

	_, err = decodeMessages([]string{`{`})
	require.Error(t, err)
}
