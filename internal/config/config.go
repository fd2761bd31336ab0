package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストアのバックエンド
const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendSQLite    = "sqlite"
	BackendMemory    = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreBackend       string
	ProjectID          string
	CredentialsFile    string
	DatabaseURL        string
	SQLitePath         string
	StoreTimeout       time.Duration
	ResolveConcurrency int

	// Auth
	FirebaseAPIKey string

	// Rate Limit
	RateLimitGeneral  int
	RateLimitCheckout int

	// Logging
	LogLevel         slog.Level
	LogRetentionDays int

	// Audit
	AuditRedisAddr    string
	AuditRedisChannel string

	// Course images
	CourseImageCheck  bool
	ImageCheckTimeout time.Duration

	// Server
	ServerPort string

	// CORS（カンマ区切りで複数指定可）
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 選択したバックエンドに必要な環境変数が未設定の場合は、不足分をまとめてエラーで返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.StoreBackend = strings.ToLower(getEnvString("STORE_BACKEND", BackendFirestore))
	cfg.ProjectID = os.Getenv("FIRESTORE_PROJECT_ID")
	cfg.CredentialsFile = os.Getenv("GOOGLE_CREDENTIALS_FILE")
	cfg.FirebaseAPIKey = os.Getenv("FIREBASE_API_KEY")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.SQLitePath = getEnvString("SQLITE_PATH", "courseman.db")

	// Required fields
	var missing []string
	switch cfg.StoreBackend {
	case BackendFirestore:
		if cfg.ProjectID == "" {
			missing = append(missing, "FIRESTORE_PROJECT_ID")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case BackendSQLite, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (want %s, %s, %s or %s)",
			cfg.StoreBackend, BackendFirestore, BackendPostgres, BackendSQLite, BackendMemory)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.StoreTimeout = getEnvDuration("STORE_TIMEOUT", 10*time.Second)
	cfg.ResolveConcurrency = getEnvInt("RESOLVE_CONCURRENCY", 8)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCheckout = getEnvInt("RATE_LIMIT_CHECKOUT", 10)
	cfg.LogLevel = getEnvLevel("LOG_LEVEL", slog.LevelInfo)
	cfg.LogRetentionDays = getEnvInt("LOG_RETENTION_DAYS", 90)
	cfg.AuditRedisAddr = os.Getenv("AUDIT_REDIS_ADDR")
	cfg.AuditRedisChannel = getEnvString("AUDIT_REDIS_CHANNEL", "courseman.audit")
	cfg.CourseImageCheck = getEnvBool("COURSE_IMAGE_CHECK", false)
	cfg.ImageCheckTimeout = getEnvDuration("IMAGE_CHECK_TIMEOUT", 5*time.Second)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// AuthEnabled はFirebase Authを利用できる設定かを返す。
func (c *Config) AuthEnabled() bool {
	return c.ProjectID != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvLevel は debug / info / warn / error を解釈する。
func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
