package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/taskpilot/taskpilot/checkpoint"
	"github.com/taskpilot/taskpilot/conversation"
)

const (
	defaultTTL    = 30 * 24 * time.Hour
	defaultPrefix = "taskpilot"
)

// Store keeps one JSON value per thread under <prefix>:thread:<id>, with a
// sliding TTL refreshed on every save so active conversations never expire.
type Store struct {
	client   *goredis.Client
	ttl      time.Duration
	prefix   string
	addr     string
	db       int
	password string
}

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) { s.password = password }
}

func WithDB(db int) Option {
	return func(s *Store) { s.db = db }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	s := &Store{
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

func (s *Store) Save(ctx context.Context, threadID string, state *conversation.State) error {
	if strings.TrimSpace(threadID) == "" {
		return fmt.Errorf("thread_id is required")
	}
	if state == nil {
		return fmt.Errorf("state is required")
	}

	raw, err := state.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := s.client.Set(ctx, s.threadKey(threadID), string(raw), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save thread in redis: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, threadID string) (*conversation.State, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, fmt.Errorf("thread_id is required")
	}

	raw, err := s.client.Get(ctx, s.threadKey(threadID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, checkpoint.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load thread from redis: %w", err)
	}

	state, err := conversation.Restore([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode state for thread %q: %w", threadID, err)
	}
	return state, nil
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) threadKey(threadID string) string {
	return fmt.Sprintf("%s:thread:%s", s.prefix, threadID)
}
