// Package config loads service configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the realtime service.
type Config struct {
	HTTPAddr string
	LogLevel string

	// DatabaseDSN selects the PostgreSQL store; empty means in-memory storage.
	DatabaseDSN string

	// RedisAddr enables the cross-instance relay when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	JWTSecret     string
	JWTIssuer     string
	JWTTTL        time.Duration
	DevTokenIssue bool

	ObjectStoreURL     string
	MaxAttachmentBytes int

	TelegramBotToken string

	SendQueueSize  int
	MaxFrameBytes  int
	StorageTimeout time.Duration
	AckTimeout     time.Duration
	AllowedOrigins []string
}

// Load reads .env (if any) and the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("config.dotenv.fail", "err", err)
	}

	cfg := Config{
		HTTPAddr: EnvString("HTTP_ADDR", ":8080"),
		LogLevel: EnvString("LOG_LEVEL", "info"),

		DatabaseDSN: EnvString("DATABASE_DSN", ""),

		RedisAddr:     EnvString("REDIS_ADDR", ""),
		RedisPassword: EnvString("REDIS_PASSWORD", ""),
		RedisDB:       EnvInt("REDIS_DB", 0),
		RedisChannel:  EnvString("REDIS_CHANNEL", "marketchat:events"),

		JWTSecret:     EnvString("JWT_SECRET", ""),
		JWTIssuer:     EnvString("JWT_ISSUER", "marketchat-service"),
		JWTTTL:        EnvDuration("JWT_TTL", 72*time.Hour),
		DevTokenIssue: EnvBool("DEV_TOKEN_ISSUE", false),

		ObjectStoreURL:     EnvString("OBJECT_STORE_URL", ""),
		MaxAttachmentBytes: EnvInt("MAX_ATTACHMENT_BYTES", MaxAttachmentBytes),

		TelegramBotToken: EnvString("TELEGRAM_BOT_TOKEN", ""),

		SendQueueSize:  EnvInt("WS_SEND_QUEUE", DefaultSendQueue),
		MaxFrameBytes:  EnvInt("WS_MAX_MESSAGE_BYTES", MaxFrameBytes),
		StorageTimeout: EnvDuration("STORAGE_TIMEOUT", DefaultStorageCall),
		AckTimeout:     EnvDuration("ACK_TIMEOUT", DefaultAckTimeout),
		AllowedOrigins: EnvCSV("ALLOWED_ORIGINS", ""),
	}
	if cfg.SendQueueSize < MinSendQueue {
		cfg.SendQueueSize = MinSendQueue
	}
	return cfg
}

// EnvString reads a string env var with a default.
func EnvString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// EnvBool reads a bool env var with a default.
func EnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// EnvInt reads a non-negative int env var with a default.
func EnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// EnvDuration reads a duration env var with a default.
func EnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// EnvCSV reads a comma separated list, dropping empty items.
func EnvCSV(key, def string) []string {
	raw := EnvString(key, def)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
