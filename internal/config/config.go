package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                     string
	DatabaseURL              string
	JWTSecret                string
	BuildingTimezone         string
	PassValidity             time.Duration
	PassSweepInterval        time.Duration
	PassSweepBatchSize       int
	RedisAddr                string
	RedisStream              string
	RelayInterval            time.Duration
	RelayBatchSize           int
	RateLimitPerMinute       int
	RateLimitBurst           int
	CallerRateLimitPerMinute int
	CallerRateLimitBurst     int
	CORSAllowedOrigins       []string
	LogLevel                 string
}

// LoadEnvFile adds the variables in path to the environment without
// overriding ones already set. A missing default .env is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		err := godotenv.Load()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                     port,
		DatabaseURL:              os.Getenv("DB_DSN"),
		JWTSecret:                os.Getenv("JWT_SECRET"),
		BuildingTimezone:         readString("BUILDING_TIMEZONE", "UTC"),
		PassValidity:             time.Duration(readInt("PASS_VALIDITY_MINUTES", 30)) * time.Minute,
		PassSweepInterval:        readDurationSeconds("PASS_SWEEP_INTERVAL_SECONDS", 60),
		PassSweepBatchSize:       readInt("PASS_SWEEP_BATCH_SIZE", 200),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisStream:              readString("REDIS_STREAM", "amenity-events"),
		RelayInterval:            readDurationSeconds("RELAY_INTERVAL_SECONDS", 5),
		RelayBatchSize:           readInt("RELAY_BATCH_SIZE", 100),
		RateLimitPerMinute:       readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("RATE_LIMIT_BURST", 30),
		CallerRateLimitPerMinute: readInt("CALLER_RATE_LIMIT_PER_MIN", 300),
		CallerRateLimitBurst:     readInt("CALLER_RATE_LIMIT_BURST", 60),
		CORSAllowedOrigins:       readList("CORS_ALLOWED_ORIGINS"),
		LogLevel:                 readString("LOG_LEVEL", "info"),
	}
}

// Location resolves BuildingTimezone. Calendar dates such as "today" are
// taken in this zone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.BuildingTimezone)
}

func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func readString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func readList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
