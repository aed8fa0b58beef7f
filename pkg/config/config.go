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

// Supported schedule store backends.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
	DriverMemory   = "memory"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Engine   EngineConfig
	Tracing  TracingConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
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

// EngineConfig tunes the run orchestrator.
type EngineConfig struct {
	MaxActiveRuns           int
	DefaultTimeLimit        time.Duration
	MaxTimeLimit            time.Duration
	BudgetGrace             time.Duration
	RunRetention            time.Duration
	CleanupInterval         time.Duration
	ProgressMirrorInterval  time.Duration
	ProgressTTL             time.Duration
	RecoverOnStart          bool
	DefaultStrategy         string
	DefaultPopulationSize   int
	DefaultGenerations      int
	DefaultStagnationLimit  int
	DefaultHybridCSPPercent int
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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
		Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		SQLitePath:   v.GetString("SQLITE_PATH"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
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

	cfg.Engine = EngineConfig{
		MaxActiveRuns:           v.GetInt("ENGINE_MAX_ACTIVE_RUNS"),
		DefaultTimeLimit:        parseDuration(v.GetString("ENGINE_DEFAULT_TIME_LIMIT"), 30*time.Second),
		MaxTimeLimit:            parseDuration(v.GetString("ENGINE_MAX_TIME_LIMIT"), 10*time.Minute),
		BudgetGrace:             parseDuration(v.GetString("ENGINE_BUDGET_GRACE"), 5*time.Second),
		RunRetention:            parseDuration(v.GetString("ENGINE_RUN_RETENTION"), 24*time.Hour),
		CleanupInterval:         parseDuration(v.GetString("ENGINE_CLEANUP_INTERVAL"), 10*time.Minute),
		ProgressMirrorInterval:  parseDuration(v.GetString("ENGINE_PROGRESS_MIRROR_INTERVAL"), 500*time.Millisecond),
		ProgressTTL:             parseDuration(v.GetString("ENGINE_PROGRESS_TTL"), time.Hour),
		RecoverOnStart:          v.GetBool("ENGINE_RECOVER_ON_START"),
		DefaultStrategy:         strings.ToUpper(v.GetString("ENGINE_DEFAULT_STRATEGY")),
		DefaultPopulationSize:   v.GetInt("ENGINE_DEFAULT_POPULATION"),
		DefaultGenerations:      v.GetInt("ENGINE_DEFAULT_GENERATIONS"),
		DefaultStagnationLimit:  v.GetInt("ENGINE_DEFAULT_STAGNATION"),
		DefaultHybridCSPPercent: v.GetInt("ENGINE_HYBRID_CSP_PERCENT"),
	}

	cfg.Tracing = TracingConfig{
		Enabled:        v.GetBool("TRACING_ENABLED"),
		ServiceName:    v.GetString("TRACING_SERVICE_NAME"),
		ServiceVersion: v.GetString("TRACING_SERVICE_VERSION"),
		OTLPEndpoint:   v.GetString("OTLP_ENDPOINT"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "schedule_engine")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("SQLITE_PATH", "./schedule-engine.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENGINE_MAX_ACTIVE_RUNS", 4)
	v.SetDefault("ENGINE_DEFAULT_TIME_LIMIT", "30s")
	v.SetDefault("ENGINE_MAX_TIME_LIMIT", "10m")
	v.SetDefault("ENGINE_BUDGET_GRACE", "5s")
	v.SetDefault("ENGINE_RUN_RETENTION", "24h")
	v.SetDefault("ENGINE_CLEANUP_INTERVAL", "10m")
	v.SetDefault("ENGINE_PROGRESS_MIRROR_INTERVAL", "500ms")
	v.SetDefault("ENGINE_PROGRESS_TTL", "1h")
	v.SetDefault("ENGINE_RECOVER_ON_START", true)
	v.SetDefault("ENGINE_DEFAULT_STRATEGY", "HYBRID")
	v.SetDefault("ENGINE_DEFAULT_POPULATION", 30)
	v.SetDefault("ENGINE_DEFAULT_GENERATIONS", 200)
	v.SetDefault("ENGINE_DEFAULT_STAGNATION", 40)
	v.SetDefault("ENGINE_HYBRID_CSP_PERCENT", 50)

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_SERVICE_NAME", "schedule-engine")
	v.SetDefault("TRACING_SERVICE_VERSION", "0.1.0")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
