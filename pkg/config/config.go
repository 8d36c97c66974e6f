package config

import (
	"errors"
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

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Cache    CacheConfig
	Imports  ImportsConfig
	Sheets   SheetsConfig
	Centers  CentersConfig
}

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

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	SessionTTL time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig governs the Redis-backed read cache for ledger listings and the catalog.
type CacheConfig struct {
	Enabled    bool
	CentersTTL time.Duration
	CatalogTTL time.Duration
}

// ImportsConfig bounds roster uploads.
type ImportsConfig struct {
	MaxConcurrent    int
	MaxWait          time.Duration
	MaxFileSizeBytes int64
}

// SheetsConfig controls asynchronous rendering of assignment sheets.
type SheetsConfig struct {
	StorageDir string
	Workers    int
	Retries    int
}

// CentersConfig holds exam center lookup defaults.
type CentersConfig struct {
	NearbyRadiusKm float64
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
		var pathErr interface{ Timeout() bool }
		if !errors.As(err, &notFound) && errors.As(err, &pathErr) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
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

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		SessionTTL: parseDuration(v.GetString("SESSION_TTL"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled:    v.GetBool("ENABLE_CACHE"),
		CentersTTL: parseDuration(v.GetString("CENTERS_CACHE_TTL"), time.Minute),
		CatalogTTL: parseDuration(v.GetString("CATALOG_CACHE_TTL"), 10*time.Minute),
	}

	maxFileSize := v.GetInt64("IMPORT_MAX_FILE_SIZE")
	if maxFileSize <= 0 {
		maxFileSize = 5 * 1024 * 1024
	}
	cfg.Imports = ImportsConfig{
		MaxConcurrent:    v.GetInt("IMPORT_MAX_CONCURRENT"),
		MaxWait:          parseDuration(v.GetString("IMPORT_MAX_WAIT"), 30*time.Second),
		MaxFileSizeBytes: maxFileSize,
	}

	cfg.Sheets = SheetsConfig{
		StorageDir: v.GetString("SHEETS_STORAGE_DIR"),
		Workers:    v.GetInt("SHEETS_WORKERS"),
		Retries:    v.GetInt("SHEETS_RETRIES"),
	}

	cfg.Centers = CentersConfig{
		NearbyRadiusKm: v.GetFloat64("NEARBY_DEFAULT_RADIUS_KM"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "result_distribution")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("JWT_ISSUER", "result-distribution-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", true)
	v.SetDefault("CENTERS_CACHE_TTL", "1m")
	v.SetDefault("CATALOG_CACHE_TTL", "10m")

	v.SetDefault("IMPORT_MAX_CONCURRENT", 5)
	v.SetDefault("IMPORT_MAX_WAIT", "30s")
	v.SetDefault("IMPORT_MAX_FILE_SIZE", 5*1024*1024)

	v.SetDefault("SHEETS_STORAGE_DIR", "./data/sheets")
	v.SetDefault("SHEETS_WORKERS", 1)
	v.SetDefault("SHEETS_RETRIES", 3)

	v.SetDefault("NEARBY_DEFAULT_RADIUS_KM", 50)
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
