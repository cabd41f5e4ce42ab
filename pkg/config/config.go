package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment names the API distinguishes. Anything other than
// production keeps developer conveniences such as the docs route.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config aggregates every tunable of the API process. Values come from
// the environment, optionally seeded by a .env file during development.
type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Documents DocumentsConfig
	Textract  TextractConfig
	Exports   ExportsConfig
	Mail      MailConfig
	Analytics AnalyticsConfig
	Feedback  FeedbackConfig
}

// DatabaseConfig carries the Postgres connection and pool settings.
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig carries the cache backend address and credentials.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig carries token signing material and lifetimes.
type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string
	Format string
}

// DocumentsConfig controls resume/transcript storage and validation.
type DocumentsConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// TextractConfig points at the document text extraction backend.
type TextractConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// ExportsConfig configures asynchronous roster export generation.
type ExportsConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// MailConfig governs outbound communication composition.
type MailConfig struct {
	FromAddress string
	FromName    string
}

// AnalyticsConfig governs cache behaviour for the admin overview endpoint.
type AnalyticsConfig struct {
	CacheTTL time.Duration
}

// FeedbackConfig governs cache behaviour for course feedback summaries.
type FeedbackConfig struct {
	SummaryCacheTTL time.Duration
}

// Load reads configuration from the environment. A missing .env file is
// not an error; malformed durations fall back to their defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return &Config{
		Env:       v.GetString("ENV"),
		Port:      v.GetInt("PORT"),
		APIPrefix: v.GetString("API_PREFIX"),
		Database:  databaseFromEnv(v),
		Redis:     redisFromEnv(v),
		JWT:       jwtFromEnv(v),
		CORS:      CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))},
		Log:       LogConfig{Level: v.GetString("LOG_LEVEL"), Format: v.GetString("LOG_FORMAT")},
		Documents: documentsFromEnv(v),
		Textract:  textractFromEnv(v),
		Exports:   exportsFromEnv(v),
		Mail:      MailConfig{FromAddress: v.GetString("MAIL_FROM_ADDRESS"), FromName: v.GetString("MAIL_FROM_NAME")},
		Analytics: AnalyticsConfig{CacheTTL: parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), time.Minute)},
		Feedback:  FeedbackConfig{SummaryCacheTTL: parseDuration(v.GetString("FEEDBACK_SUMMARY_CACHE_TTL"), 5*time.Minute)},
	}, nil
}

func databaseFromEnv(v *viper.Viper) DatabaseConfig {
	return DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}
}

func redisFromEnv(v *viper.Viper) RedisConfig {
	return RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}
}

func jwtFromEnv(v *viper.Viper) JWTConfig {
	return JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}
}

func documentsFromEnv(v *viper.Viper) DocumentsConfig {
	maxSize := v.GetInt64("DOCUMENTS_MAX_FILE_SIZE")
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	return DocumentsConfig{
		StorageDir:       v.GetString("DOCUMENTS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("DOCUMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("DOCUMENTS_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("DOCUMENTS_ALLOWED_MIME_TYPES")),
	}
}

func textractFromEnv(v *viper.Viper) TextractConfig {
	return TextractConfig{
		Endpoint: v.GetString("TEXTRACT_ENDPOINT"),
		APIKey:   v.GetString("TEXTRACT_API_KEY"),
		Timeout:  parseDuration(v.GetString("TEXTRACT_TIMEOUT"), 30*time.Second),
	}
}

func exportsFromEnv(v *viper.Viper) ExportsConfig {
	return ExportsConfig{
		StorageDir:        v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("EXPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORTS_WORKER_RETRIES"),
	}
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"ENV":        EnvDevelopment,
		"PORT":       8080,
		"API_PREFIX": "/api/v1",

		"DB_HOST":           "localhost",
		"DB_PORT":           5432,
		"DB_USER":           "postgres",
		"DB_PASSWORD":       "postgres",
		"DB_NAME":           "camatch",
		"DB_SSL_MODE":       "disable",
		"DB_MAX_OPEN_CONNS": 10,
		"DB_MAX_IDLE_CONNS": 5,

		"REDIS_HOST":     "localhost",
		"REDIS_PORT":     6379,
		"REDIS_PASSWORD": "",
		"REDIS_DB":       0,

		"JWT_SECRET":               "dev_secret",
		"JWT_EXPIRATION":           "24h",
		"REFRESH_TOKEN_EXPIRATION": "168h",

		"ALLOWED_ORIGINS": "",
		"LOG_LEVEL":       "info",
		"LOG_FORMAT":      "json",

		"DOCUMENTS_STORAGE_DIR":        "./uploads",
		"DOCUMENTS_SIGNED_URL_SECRET":  "dev_documents_secret",
		"DOCUMENTS_SIGNED_URL_TTL":     "30m",
		"DOCUMENTS_MAX_FILE_SIZE":      10 * 1024 * 1024,
		"DOCUMENTS_ALLOWED_MIME_TYPES": "application/pdf,application/vnd.openxmlformats-officedocument.wordprocessingml.document,text/plain",

		"TEXTRACT_ENDPOINT": "",
		"TEXTRACT_API_KEY":  "",
		"TEXTRACT_TIMEOUT":  "30s",

		"EXPORTS_STORAGE_DIR":        "./exports",
		"EXPORTS_SIGNED_URL_SECRET":  "dev_exports_secret",
		"EXPORTS_SIGNED_URL_TTL":     "24h",
		"EXPORTS_CLEANUP_INTERVAL":   "1h",
		"EXPORTS_WORKER_CONCURRENCY": 1,
		"EXPORTS_WORKER_RETRIES":     3,

		"MAIL_FROM_ADDRESS": "ta-match@university.edu",
		"MAIL_FROM_NAME":    "TA Matching Office",

		"ANALYTICS_CACHE_TTL":        "1m",
		"FEEDBACK_SUMMARY_CACHE_TTL": "5m",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
