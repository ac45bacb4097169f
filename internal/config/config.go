package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the backend (api + worker) configuration.
type Config struct {
	Env   string
	Port  int
	DBURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AnonKey       string
	AllowedOrigin []string

	AuthRateLimit  int
	WriteRateLimit int

	OTelEnabled  bool
	OTelEndpoint string

	SeedOrganizerEmail    string
	SeedOrganizerPassword string
	SeedOrganizationName  string

	WorkerPort        int
	WorkerConcurrency int
	PollInterval      time.Duration
}

// LoadDotEnv reads a .env file when one exists. A missing file is fine.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env", "err", err)
	}
}

func Load() Config {
	return Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 8080),
		DBURL: buildDBURL(),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:     getEnv("JWT_SECRET", "dev-secret-change-me"),
		AccessTTL:     time.Duration(getEnvInt("JWT_ACCESS_TTL_MINUTES", 60)) * time.Minute,
		RefreshTTL:    time.Duration(getEnvInt("JWT_REFRESH_TTL_DAYS", 30)) * 24 * time.Hour,
		AnonKey:       getEnv("ANON_KEY", "dev-anon-key"),
		AllowedOrigin: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		AuthRateLimit:  getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		WriteRateLimit: getEnvInt("WRITE_RATE_LIMIT_PER_MIN", 120),

		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		SeedOrganizerEmail:    getEnv("SEED_ORGANIZER_EMAIL", ""),
		SeedOrganizerPassword: getEnv("SEED_ORGANIZER_PASSWORD", ""),
		SeedOrganizationName:  getEnv("SEED_ORGANIZATION_NAME", "KidsHub Demo Club"),

		WorkerPort:        getEnvInt("WORKER_PORT", 8081),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		PollInterval:      time.Duration(getEnvInt("WORKER_POLL_MS", 250)) * time.Millisecond,
	}
}

func buildDBURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "kidshub")
	pass := getEnv("DB_PASSWORD", "kidshub")
	name := getEnv("DB_NAME", "kidshub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

// ClientConfig configures the command line client.
type ClientConfig struct {
	URL       string
	AnonKey   string
	StateDir  string
	RedisAddr string
}

func LoadClient() ClientConfig {
	return ClientConfig{
		URL:       getEnv("KIDSHUB_URL", ""),
		AnonKey:   getEnv("KIDSHUB_ANON_KEY", ""),
		StateDir:  getEnv("KIDSHUB_STATE_DIR", defaultStateDir()),
		RedisAddr: getEnv("KIDSHUB_REDIS_ADDR", ""),
	}
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".kidshub"
	}
	return dir + string(os.PathSeparator) + "kidshub"
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v)
			return fallback
		}
		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
