package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/qabox/qabox/internal/validation"
)

const defaultAdminRoutePrefix = "/console-x7k9m"

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string
	Host    string
	Port    string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	JWTSecret        string
	JWTAlgorithm     string
	AskerTokenExpiry time.Duration

	// Admin
	AdminRoutePrefix   string // Unguessable route segment, not a security boundary
	AdminUsername      string
	AdminPasswordHash  string // bcrypt, see `qaboxctl hash-password`
	AdminTokenExpiry   time.Duration
	AdminTokenRefresh  time.Duration // Renew when remaining lifetime drops below this
	AdminNotifyEmail   string
	CORSAllowedOrigins []string

	// Uploads
	UploadDir     string
	UploadMaxSize int64 // Non-admin cap in bytes
	ServeUploads  bool  // Disable when a reverse proxy serves /uploads/

	// Backups
	BackupDir      string
	BackupInterval time.Duration // <= 0 disables the scheduled loop
	BackupMaxCount int

	// Backup mirror (S3-compatible: MinIO, AWS S3, Cloudflare R2, etc.)
	BackupS3Bucket    string
	BackupS3Region    string
	BackupS3AccessKey string
	BackupS3SecretKey string
	BackupS3Endpoint  string

	// Email
	EmailFrom    string
	ResendAPIKey string

	// Observability (optional)
	SentryDSN string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "QA Box"),
		AppEnv:  envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:  envString("APP_URL", "http://localhost:13000"),
		Host:    envString("HOST", "127.0.0.1"),
		Port:    envString("PORT", "18000"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/qa_box.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"),

		// Security
		JWTSecret:        envRequired("JWT_SECRET"),
		JWTAlgorithm:     envString("JWT_ALGORITHM", "HS256"),
		AskerTokenExpiry: envDuration("ASKER_TOKEN_EXPIRY", 720*time.Hour), // 30 days

		// Admin
		AdminRoutePrefix:   normalizePrefix(envString("ADMIN_ROUTE_PREFIX", defaultAdminRoutePrefix)),
		AdminUsername:      envString("ADMIN_USERNAME", "admin"),
		AdminPasswordHash:  envRequired("ADMIN_PASSWORD_HASH"),
		AdminTokenExpiry:   envDuration("ADMIN_TOKEN_EXPIRY", 168*time.Hour), // 7 days
		AdminTokenRefresh:  envDuration("ADMIN_TOKEN_REFRESH", 24*time.Hour), // 1 day
		AdminNotifyEmail:   envString("ADMIN_NOTIFY_EMAIL", ""),
		CORSAllowedOrigins: envList("CORS_ORIGINS", "http://localhost:13000,http://127.0.0.1:13000"),

		// Uploads
		UploadDir:     envString("UPLOAD_DIR", "./uploads"),
		UploadMaxSize: envInt64("UPLOAD_MAX_SIZE", 10<<20), // 10 MiB
		ServeUploads:  envBool("SERVE_UPLOADS", true),

		// Backups
		BackupDir:      envString("BACKUP_DIR", "./backups"),
		BackupInterval: envDuration("BACKUP_INTERVAL", 24*time.Hour),
		BackupMaxCount: envInt("BACKUP_MAX_COUNT", 7),

		BackupS3Bucket:    envString("BACKUP_S3_BUCKET", ""),
		BackupS3Region:    envString("BACKUP_S3_REGION", "us-east-1"),
		BackupS3AccessKey: envString("BACKUP_S3_ACCESS_KEY", ""),
		BackupS3SecretKey: envString("BACKUP_S3_SECRET_KEY", ""),
		BackupS3Endpoint:  envString("BACKUP_S3_ENDPOINT", ""), // Optional: for non-AWS providers

		// Email
		EmailFrom:    envString("EMAIL_FROM", "noreply@example.com"),
		ResendAPIKey: envString("RESEND_API_KEY", ""),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction ensures the configured services can actually run.
// Development falls back to logging emails instead of sending them.
func validateProduction(cfg *Config) {
	if cfg.AdminNotifyEmail != "" {
		err := validation.ValidateEmail(cfg.AdminNotifyEmail)
		if err != nil {
			slog.Error("invalid ADMIN_NOTIFY_EMAIL", "error", err)
			os.Exit(1)
		}
	}
	if cfg.AdminNotifyEmail != "" && cfg.ResendAPIKey == "" {
		slog.Error("production deployment with ADMIN_NOTIFY_EMAIL requires RESEND_API_KEY",
			"hint", "unset ADMIN_NOTIFY_EMAIL to disable new question notifications")
		os.Exit(1)
	}
	if cfg.AdminRoutePrefix == defaultAdminRoutePrefix {
		slog.Warn("ADMIN_ROUTE_PREFIX is still the default value")
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envInt64(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("config invalid int64, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envList(key, def string) []string {
	var out []string
	for _, item := range strings.Split(envString(key, def), ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func normalizePrefix(prefix string) string {
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		return defaultAdminRoutePrefix
	}
	return prefix
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// SQLitePath returns the database file behind DBConnection, or "" when the
// driver is not sqlite or the database lives in memory.
func (c *Config) SQLitePath() string {
	if c.DBDriver != "sqlite" {
		return ""
	}
	path := c.DBConnection
	path = strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

// BackupMirrorEnabled reports whether snapshots are copied off-site.
func (c *Config) BackupMirrorEnabled() bool {
	return c.BackupS3Bucket != ""
}

// Sanitized returns a copy of the config with only public/safe fields.
// All secrets, credentials, and sensitive data are excluded.
// Safe to log at startup.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName: c.AppName,
		AppEnv:  c.AppEnv,
		AppURL:  c.AppURL,
		Host:    c.Host,
		Port:    c.Port,

		DBDriver: c.DBDriver,

		JWTAlgorithm:       c.JWTAlgorithm,
		AskerTokenExpiry:   c.AskerTokenExpiry,
		AdminTokenExpiry:   c.AdminTokenExpiry,
		AdminTokenRefresh:  c.AdminTokenRefresh,
		CORSAllowedOrigins: c.CORSAllowedOrigins,

		UploadDir:     c.UploadDir,
		UploadMaxSize: c.UploadMaxSize,
		ServeUploads:  c.ServeUploads,

		BackupDir:      c.BackupDir,
		BackupInterval: c.BackupInterval,
		BackupMaxCount: c.BackupMaxCount,
		BackupS3Bucket: c.BackupS3Bucket,

		EmailFrom: c.EmailFrom,
	}
}
