package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xxxsen/voicerag/internal/model"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

const defaultRedisPrefix = "voicerag"

type redisConfig struct {
	URL    string `json:"url"`
	Prefix string `json:"prefix"`
}

// redisStore keeps each session as a hash (meta), a list (messages) and a
// member of a zset scored by creation time (listing order).
type redisStore struct {
	client *redis.Client
	prefix string
}

// setNameOnce renames only while the name is still the default.
var setNameOnce = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
if redis.call("HGET", KEYS[1], "name") ~= ARGV[1] then
	return 0
end
redis.call("HSET", KEYS[1], "name", ARGV[2], "mtime", ARGV[3])
return 1
`)

func init() {
	Register("redis", createRedisStore)
}

func createRedisStore(args interface{}) (Store, error) {
	cfg := &redisConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis session store url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return newRedisStore(client, cfg.Prefix), nil
}

func newRedisStore(client *redis.Client, prefix string) *redisStore {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &redisStore{client: client, prefix: prefix}
}

func (s *redisStore) metaKey(id string) string {
	return s.prefix + ":session:" + id
}

func (s *redisStore) messagesKey(id string) string {
	return s.prefix + ":session:" + id + ":messages"
}

func (s *redisStore) indexKey() string {
	return s.prefix + ":sessions"
}

func (s *redisStore) Create(ctx context.Context) (*model.ChatSession, error) {
	now := time.Now().UnixMilli()
	sess := &model.ChatSession{
		ID:       uuid.NewString(),
		Name:     model.DefaultSessionName,
		Messages: []model.Message{},
		Ctime:    now,
		Mtime:    now,
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.metaKey(sess.ID), "name", sess.Name, "ctime", now, "mtime", now)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now), Member: sess.ID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *redisStore) loadMeta(ctx context.Context, id string) (*model.ChatSession, error) {
	vals, err := s.client.HGetAll(ctx, s.metaKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("session %s: %w", id, appErr.ErrNotFound)
	}
	ctime, _ := strconv.ParseInt(vals["ctime"], 10, 64)
	mtime, _ := strconv.ParseInt(vals["mtime"], 10, 64)
	return &model.ChatSession{ID: id, Name: vals["name"], Ctime: ctime, Mtime: mtime}, nil
}

func (s *redisStore) Get(ctx context.Context, id string) (*model.ChatSession, error) {
	sess, err := s.loadMeta(ctx, id)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.LRange(ctx, s.messagesKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	sess.Messages, err = decodeMessages(raw)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *redisStore) List(ctx context.Context) ([]*model.ChatSession, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*model.ChatSession, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if errors.Is(err, appErr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *redisStore) Append(ctx context.Context, id string, role model.Role, content string) (*model.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("role %q: %w", role, appErr.ErrInvalid)
	}
	exists, err := s.client.Exists(ctx, s.metaKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("session %s: %w", id, appErr.ErrNotFound)
	}
	msg := model.Message{Role: role, Content: content, Ctime: time.Now().UnixMilli()}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.messagesKey(id), data)
		pipe.HSet(ctx, s.metaKey(id), "mtime", msg.Ctime)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *redisStore) Recent(ctx context.Context, id string, n int) ([]model.Message, error) {
	if _, err := s.loadMeta(ctx, id); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []model.Message{}, nil
	}
	raw, err := s.client.LRange(ctx, s.messagesKey(id), int64(-n), -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeMessages(raw)
}

func (s *redisStore) SetNameOnce(ctx context.Context, id string, name string) (bool, error) {
	res, err := setNameOnce.Run(ctx, s.client, []string{s.metaKey(id)},
		model.DefaultSessionName, name, time.Now().UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	switch res {
	case -1:
		return false, fmt.Errorf("session %s: %w", id, appErr.ErrNotFound)
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

func decodeMessages(raw []string) ([]model.Message, error) {
	out := make([]model.Message, 0, len(raw))
	for _, item := range raw {
		var msg model.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode session message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}
