package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	RegistryPath string
	DBPath       string
	OutputDir    string
	InboxDir     string

	DailyMedBaseURL  string
	OpenFDABaseURL   string
	OpenFDAAPIKey    string
	HTTPTimeoutMs    int
	HTTPRateLimitRPS float64
	HTTPUserAgent    string

	MaxEstablishments int
	NameMatchLimit    int
	NameMatchMinLen   int

	LogLevel  string
	LogFormat string

	LookupConcurrency int

	ListenerIntervalSec int
	ListenerBatch       int
	ListenerAutoExport  bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RegistryPath: getEnv("REGISTRY_PATH", ""),
		DBPath:       getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		OutputDir:    getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		InboxDir:     getEnv("INBOX_DIR", filepath.Join(cwd, "data", "inbox")),

		DailyMedBaseURL:  getEnv("DAILYMED_BASE_URL", "https://dailymed.nlm.nih.gov/dailymed"),
		OpenFDABaseURL:   getEnv("OPENFDA_BASE_URL", "https://api.fda.gov"),
		OpenFDAAPIKey:    getEnv("OPENFDA_API_KEY", ""),
		HTTPTimeoutMs:    getEnvInt("HTTP_TIMEOUT_MS", 30000),
		HTTPRateLimitRPS: getEnvFloat("HTTP_RATE_LIMIT_RPS", 5),
		HTTPUserAgent:    getEnv("HTTP_USER_AGENT", "FDA-Research-Tool/1.0 (research@fda.gov)"),

		MaxEstablishments: getEnvInt("MAX_ESTABLISHMENTS", 10),
		NameMatchLimit:    getEnvInt("NAME_MATCH_LIMIT", 3),
		NameMatchMinLen:   getEnvInt("NAME_MATCH_MIN_LEN", 4),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		LookupConcurrency: getEnvInt("LOOKUP_CONCURRENCY", 4),

		ListenerIntervalSec: getEnvInt("LISTENER_INTERVAL_SEC", 30),
		ListenerBatch:       getEnvInt("LISTENER_BATCH", 20),
		ListenerAutoExport:  getEnvBool("LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
