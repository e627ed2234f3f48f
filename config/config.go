/*
Package config loads process settings from the environment.

PURPOSE:
  One place that knows every environment variable the binaries read,
  with typed helpers and defaults. A .env file in the working directory
  is loaded first when present.

SEE ALSO:
  - logger.go: logrus setup from LOG_LEVEL / LOG_FORMAT
  - redis.go: optional Redis connection for the rollup lock
*/
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/warp/ssn-filing/regulator"
)

type AppConfig struct {
	Port         string
	DatabasePath string
	LogLevel     string
	LogFormat    string

	Regulator regulator.Config

	// RedisAddress selects the distributed rollup lock; empty keeps the
	// lock in-process.
	RedisAddress  string
	RollupLockTTL time.Duration

	SkipRemoteValidation bool
}

// Load reads .env (if any) and the environment.
func Load() *AppConfig {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("no .env file loaded, using process environment")
	}

	cfg := &AppConfig{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "ssn.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),

		Regulator: regulator.Config{
			BaseURL:        getEnv("SSN_BASE_URL", ""),
			Username:       getEnv("SSN_USERNAME", ""),
			Password:       getEnv("SSN_PASSWORD", ""),
			Company:        getEnv("SSN_CIA", ""),
			MaxRetries:     getEnvAsInt("SSN_MAX_RETRIES", 3),
			RetryDelay:     getEnvAsDuration("SSN_RETRY_DELAY", 2*time.Second),
			RefreshMargin:  getEnvAsDuration("SSN_TOKEN_REFRESH_MARGIN", 5*time.Minute),
			ConnectTimeout: getEnvAsDuration("SSN_CONNECT_TIMEOUT", 10*time.Second),
			ReadTimeout:    getEnvAsDuration("SSN_READ_TIMEOUT", 20*time.Second),
			VerifySSL:      getEnvAsBool("SSN_VERIFY_SSL", true),
		},

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RollupLockTTL: getEnvAsDuration("ROLLUP_LOCK_TTL", 30*time.Second),

		SkipRemoteValidation: getEnvAsBool("SKIP_REMOTE_VALIDATION", false),
	}

	if cfg.Regulator.BaseURL == "" {
		logrus.Warn("SSN_BASE_URL not set; regulator calls will fail")
	}
	if len(cfg.Regulator.Company) != 4 {
		logrus.WithField("SSN_CIA", cfg.Regulator.Company).Warn("company code should have 4 characters")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	logrus.Warnf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	logrus.Warnf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback)
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	logrus.Warnf("Invalid boolean value for %s ('%s'), using default: %t", key, valueStr, fallback)
	return fallback
}
