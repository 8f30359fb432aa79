package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/aarons-archive/skeleton-clique-bot/internal/store"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"` // sqlite|pgx (see store.ParseDialect)
	DBDSN    string `envconfig:"DB_DSN" default:"./data/bot.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"` // healthz + metrics

	FlushInterval   time.Duration `envconfig:"FLUSH_INTERVAL" default:"5s"`
	FlushRetries    uint64        `envconfig:"FLUSH_RETRIES" default:"3"`
	FlushBackoff    time.Duration `envconfig:"FLUSH_BACKOFF" default:"200ms"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	MaxConcurrentDeliveries int64 `envconfig:"MAX_CONCURRENT_DELIVERIES" default:"16"`

	// Base64 32-byte key; empty keeps refresh tokens in plaintext.
	TokenEncryptionKey string `envconfig:"TOKEN_ENCRYPTION_KEY"`
	OwnerIDs           string `envconfig:"OWNER_IDS"` // comma-separated user ids
}

// Load reads .env (when present) and then environment variables into Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return errors.New("BOT_TOKEN must not be empty")
	}
	if _, err := store.ParseDialect(c.DBDriver); err != nil {
		return fmt.Errorf("DB_DRIVER: %w", err)
	}
	if c.FlushInterval <= 0 {
		return errors.New("FLUSH_INTERVAL must be positive")
	}
	if c.MaxConcurrentDeliveries <= 0 {
		return errors.New("MAX_CONCURRENT_DELIVERIES must be positive")
	}
	if _, err := c.Owners(); err != nil {
		return err
	}
	return nil
}

// Owners parses OWNER_IDS.
func (c Config) Owners() (map[int64]bool, error) {
	owners := make(map[int64]bool)
	for _, part := range strings.Split(c.OwnerIDs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("OWNER_IDS: %q is not a user id", part)
		}
		owners[id] = true
	}
	return owners, nil
}
