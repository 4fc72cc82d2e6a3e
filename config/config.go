package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every runtime parameter, sourced from environment variables
// (loaded from .env for local runs).
type Config struct {
	LLM        LLM
	Checkpoint Checkpoint
	Tasks      Tasks
	Calendar   Calendar
	LogLevel   string `envconfig:"TASKPILOT_LOG_LEVEL" default:"info"`
}

type LLM struct {
	APIKey     string `envconfig:"OPENAI_API_KEY" required:"true"`
	BaseURL    string `envconfig:"OPENAI_BASE_URL"`
	Model      string `envconfig:"TASKPILOT_MODEL" default:"gpt-4o-mini"`
	MaxRetries int    `envconfig:"TASKPILOT_LLM_MAX_RETRIES" default:"3"`
}

type Checkpoint struct {
	Backend       string        `envconfig:"TASKPILOT_CHECKPOINT_BACKEND" default:"sqlite"`
	SQLitePath    string        `envconfig:"TASKPILOT_CHECKPOINT_SQLITE_PATH" default:"./.taskpilot/threads.db"`
	RedisAddr     string        `envconfig:"TASKPILOT_REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string        `envconfig:"TASKPILOT_REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"TASKPILOT_REDIS_DB" default:"0"`
	RedisTTL      time.Duration `envconfig:"TASKPILOT_REDIS_TTL" default:"720h"`
}

type Tasks struct {
	SQLitePath string `envconfig:"TASKPILOT_TASKS_SQLITE_PATH" default:"./.taskpilot/tasks.db"`
	Timezone   string `envconfig:"TASKPILOT_TIMEZONE" default:"UTC"`
}

type Calendar struct {
	CredentialsFile string `envconfig:"GOOGLE_CALENDAR_CREDENTIALS_FILE"`
	CalendarID      string `envconfig:"GOOGLE_CALENDAR_ID" default:"primary"`
}

// Load reads .env when present, then populates Config from the environment.
func Load() (Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process environment config: %w", err)
	}
	return cfg, nil
}
