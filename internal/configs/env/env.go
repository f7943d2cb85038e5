package env

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// LoadEnv loads variables from a .env file in the working directory, if present.
// Variables already set in the process environment are not overridden.
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded, using process environment")
		return err
	}
	return nil
}

func GetEnv(key string, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-integer environment value")
	}
	return defaultValue
}

func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return floatValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-numeric environment value")
	}
	return defaultValue
}

// GetEnvDuration reads an integer count of unit from key.
func GetEnvDuration(key string, unit time.Duration, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return time.Duration(n) * unit
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-integer duration value")
	}
	return defaultValue
}
