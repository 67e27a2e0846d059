package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	CORS       CORSConfig
	Log        LogConfig
	Attendance AttendanceConfig
	Sources    SourcesConfig
	Cache      CacheConfig
	Alerts     AlertsConfig
	SMTP       SMTPConfig
	Exports    ExportsConfig
}

type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AttendanceConfig tunes the aggregation engine.
type AttendanceConfig struct {
	LowThreshold   float64
	SubjectAliases map[string]string
}

// SourcesConfig controls where uploaded session files live.
type SourcesConfig struct {
	StorageDir       string
	MaxFileSizeBytes int64
	LoadConcurrency  int
}

// CacheConfig toggles report caching in Redis.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// AlertsConfig configures the low attendance notifier.
type AlertsConfig struct {
	Enabled    bool
	AdminEmail string
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// SMTPConfig holds outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// ExportsConfig controls rendered report storage & download links.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("ENABLE_DATABASE"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	threshold := v.GetFloat64("ATTENDANCE_LOW_THRESHOLD")
	if threshold <= 0 || threshold > 100 {
		threshold = 75
	}
	cfg.Attendance = AttendanceConfig{
		LowThreshold:   threshold,
		SubjectAliases: parsePairs(v.GetString("ATTENDANCE_SUBJECT_ALIASES")),
	}

	maxSourceSize := v.GetInt64("SOURCES_MAX_FILE_SIZE")
	if maxSourceSize <= 0 {
		maxSourceSize = 10 * 1024 * 1024
	}
	cfg.Sources = SourcesConfig{
		StorageDir:       v.GetString("SOURCES_STORAGE_DIR"),
		MaxFileSizeBytes: maxSourceSize,
		LoadConcurrency:  v.GetInt("SOURCES_LOAD_CONCURRENCY"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_REPORT_CACHE"),
		TTL:     parseDuration(v.GetString("REPORT_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Alerts = AlertsConfig{
		Enabled:    v.GetBool("ENABLE_ALERTS"),
		AdminEmail: v.GetString("ALERT_ADMIN_EMAIL"),
		Workers:    v.GetInt("ALERT_WORKERS"),
		Retries:    v.GetInt("ALERT_RETRIES"),
		RetryDelay: parseDuration(v.GetString("ALERT_RETRY_DELAY"), 5*time.Second),
	}

	cfg.SMTP = SMTPConfig{
		Host:     v.GetString("MAIL_SERVER"),
		Port:     v.GetInt("MAIL_PORT"),
		Username: v.GetString("MAIL_USERNAME"),
		Password: v.GetString("MAIL_PASSWORD"),
		From:     v.GetString("MAIL_FROM"),
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}
	if cfg.Alerts.AdminEmail == "" {
		cfg.Alerts.AdminEmail = cfg.SMTP.Username
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("ENABLE_DATABASE", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "attendance_insights")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ATTENDANCE_LOW_THRESHOLD", 75.0)
	v.SetDefault("ATTENDANCE_SUBJECT_ALIASES", "OS=Operating System,CN=Computer Networks,DBMS=Database Management Systems,AI=Artificial Intelligence")

	v.SetDefault("SOURCES_STORAGE_DIR", "./reports")
	v.SetDefault("SOURCES_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("SOURCES_LOAD_CONCURRENCY", 4)

	v.SetDefault("ENABLE_REPORT_CACHE", false)
	v.SetDefault("REPORT_CACHE_TTL", "10m")

	v.SetDefault("ENABLE_ALERTS", false)
	v.SetDefault("ALERT_ADMIN_EMAIL", "")
	v.SetDefault("ALERT_WORKERS", 2)
	v.SetDefault("ALERT_RETRIES", 3)
	v.SetDefault("ALERT_RETRY_DELAY", "5s")

	v.SetDefault("MAIL_SERVER", "smtp.gmail.com")
	v.SetDefault("MAIL_PORT", 587)
	v.SetDefault("MAIL_USERNAME", "")
	v.SetDefault("MAIL_PASSWORD", "")
	v.SetDefault("MAIL_FROM", "")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
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
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parsePairs reads "KEY=Value,KEY2=Value 2" into a map keyed by upper-cased KEY.
func parsePairs(raw string) map[string]string {
	result := make(map[string]string)
	for _, part := range splitAndTrim(raw) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
