package factory

import (
	"fmt"
	"strings"

	"github.com/taskpilot/taskpilot/checkpoint"
	"github.com/taskpilot/taskpilot/checkpoint/memory"
	redisstore "github.com/taskpilot/taskpilot/checkpoint/redis"
	sqlitestore "github.com/taskpilot/taskpilot/checkpoint/sqlite"
	"github.com/taskpilot/taskpilot/config"
)

// New builds the checkpoint backend named by the configuration.
func New(cfg config.Checkpoint) (checkpoint.Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case "", "sqlite":
		return sqlitestore.New(cfg.SQLitePath)

	case "redis":
		opts := []redisstore.Option{
			redisstore.WithPassword(cfg.RedisPassword),
			redisstore.WithDB(cfg.RedisDB),
		}
		if cfg.RedisTTL > 0 {
			opts = append(opts, redisstore.WithTTL(cfg.RedisTTL))
		}
		return redisstore.New(cfg.RedisAddr, opts...)

	case "memory":
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unsupported checkpoint backend %q (use sqlite, redis, or memory)", backend)
	}
}
