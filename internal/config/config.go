package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	CORS     CORSConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	JWTSecretFile         string
	Issuer                string
	AccessTokenTTLSeconds int
	BcryptCost            int
	StoreTimeoutMillis    int
	MaxFailedLogins       int
	LockoutWindowSeconds  int
	LoginRatePerSecond    float64
	LoginBurst            int
	SeedFile              string
	AuditStream           string
	AuditStreamMaxLen     int64
}

// CORSConfig lists the origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	loginRate, err := strconv.ParseFloat(getEnv("AUTH_LOGIN_RATE_PER_SECOND", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_LOGIN_RATE_PER_SECOND: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "recipe-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             os.Getenv("AUTH_JWT_SECRET"),
			JWTSecretFile:         os.Getenv("AUTH_JWT_SECRET_FILE"),
			Issuer:                getEnv("AUTH_JWT_ISSUER", "recipe-service"),
			AccessTokenTTLSeconds: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_SECONDS", 86400),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			StoreTimeoutMillis:    getEnvAsInt("AUTH_STORE_TIMEOUT_MS", 3000),
			MaxFailedLogins:       getEnvAsInt("AUTH_MAX_FAILED_LOGINS", 5),
			LockoutWindowSeconds:  getEnvAsInt("AUTH_LOCKOUT_WINDOW_SECONDS", 900),
			LoginRatePerSecond:    loginRate,
			LoginBurst:            getEnvAsInt("AUTH_LOGIN_BURST", 10),
			SeedFile:              os.Getenv("AUTH_SEED_FILE"),
			AuditStream:           getEnv("AUTH_AUDIT_STREAM", "auth:audit"),
			AuditStreamMaxLen:     int64(getEnvAsInt("AUTH_AUDIT_STREAM_MAXLEN", 10000)),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run safely with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" && c.Auth.JWTSecretFile == "" {
		errs = append(errs, errors.New("one of AUTH_JWT_SECRET or AUTH_JWT_SECRET_FILE is required"))
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be at least 32 bytes"))
	}
	if c.Auth.AccessTokenTTLSeconds <= 0 {
		errs = append(errs, errors.New("AUTH_ACCESS_TOKEN_TTL_SECONDS must be positive"))
	}
	if c.Auth.StoreTimeoutMillis <= 0 {
		errs = append(errs, errors.New("AUTH_STORE_TIMEOUT_MS must be positive"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLSeconds) * time.Second
}

// StoreTimeout bounds a single credential store lookup.
func (a AuthConfig) StoreTimeout() time.Duration {
	return time.Duration(a.StoreTimeoutMillis) * time.Millisecond
}

// LockoutWindow is the period over which failed logins are counted.
func (a AuthConfig) LockoutWindow() time.Duration {
	return time.Duration(a.LockoutWindowSeconds) * time.Second
}

// Origins returns the comma separated allow-list, normalized for fiber's cors middleware.
func (c CORSConfig) Origins() string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return "*"
	}
	return strings.Join(out, ",")
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
