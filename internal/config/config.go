package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/linepoll/linepoll/internal/infrastructure/cloudflare"
)

// Storage backends.
const (
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config holds service configuration.
type Config struct {
	TelegramToken string
	AdminIDs      []string

	PollTimeout time.Duration
	SettleDelay time.Duration

	CloudflareAccountID string
	CloudflareAuthToken string
	CloudflareModel     string

	StorageBackend string
	StorageFile    string
	RedisAddr      string
	RedisPassword  string
	DatabaseURL    string

	ServerAddr string
	LogFile    string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	if accountID == "" {
		return nil, fmt.Errorf("CLOUDFLARE_ACCOUNT_ID is required")
	}
	authToken := os.Getenv("CLOUDFLARE_AUTH_TOKEN")
	if authToken == "" {
		return nil, fmt.Errorf("CLOUDFLARE_AUTH_TOKEN is required")
	}

	backend := getenv("STORAGE_BACKEND", StorageFile)
	switch backend {
	case StorageFile, StorageRedis, StoragePostgres:
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", backend)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" && backend == StoragePostgres {
		user := getenv("POSTGRES_USER", "linepoll")
		pass := getenv("POSTGRES_PASSWORD", "linepoll_pass")
		db := getenv("POSTGRES_DB", "linepoll")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	return &Config{
		TelegramToken:       token,
		AdminIDs:            splitCSV(os.Getenv("ADMIN_IDS")),
		PollTimeout:         parseDuration(getenv("POLL_TIMEOUT", "5m"), 5*time.Minute),
		SettleDelay:         parseDuration(getenv("SETTLE_DELAY", "5s"), 5*time.Second),
		CloudflareAccountID: accountID,
		CloudflareAuthToken: authToken,
		CloudflareModel:     getenv("CLOUDFLARE_MODEL", cloudflare.DefaultModel),
		StorageBackend:      backend,
		StorageFile:         getenv("STORAGE_FILE", "bot_data.json"),
		RedisAddr:           getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:         dsn,
		ServerAddr:          getenv("SERVER_ADDR", "0.0.0.0:8080"),
		LogFile:             getenv("LOG_FILE", "bot.log"),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(val string) []string {
	parts := strings.Split(val, ",")
	out := []string{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
