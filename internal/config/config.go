package config

import (
	"fmt"
	"time"

	"github.com/RishiKendai/labcheck/internal/configs/env"
)

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"

	TextStoreFS = "fs"
	TextStoreS3 = "s3"

	MatchIndexFile  = "file"
	MatchIndexRedis = "redis"
)

// Config holds all configuration for the application
type Config struct {
	// Record store
	StoreDriver  string
	DatabasePath string
	MongoURI     string
	MongoDBName  string

	// Report text storage
	TextStoreDriver string
	StorageDir      string
	S3Bucket        string
	S3Prefix        string
	S3Region        string

	// Match index
	MatchIndexDriver   string
	MatchIndexPath     string
	RedisMatchIndexKey string

	// Redis
	RedisHost               string
	RedisPassword           string
	RedisStreamKey          string
	RedisConsumerGroup      string
	RedisDeadLetterKey      string
	StreamRetentionDuration time.Duration

	// Remote text extraction
	ExtractorURL    string
	ExtractorAPIKey string

	// JWT
	JWTSecret string
	JWTIssuer string

	// Rate Limiting
	RateLimitRPS float64

	// Check processing
	QueueYield     time.Duration
	JobTimeout     time.Duration
	MaxUploadBytes int64

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	MetricsPort string
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Record store
	cfg.StoreDriver = env.GetEnv("STORE_DRIVER", StoreSQLite)
	cfg.DatabasePath = env.GetEnv("DATABASE_PATH", "./data/reports.db")
	cfg.MongoURI = env.GetEnv("MONGO_URI", "")
	cfg.MongoDBName = env.GetEnv("MONGO_DB_NAME", "")

	// Report text storage
	cfg.TextStoreDriver = env.GetEnv("TEXT_STORE_DRIVER", TextStoreFS)
	cfg.StorageDir = env.GetEnv("STORAGE_DIR", "./storage")
	cfg.S3Bucket = env.GetEnv("S3_BUCKET", "")
	cfg.S3Prefix = env.GetEnv("S3_PREFIX", "reports/")
	cfg.S3Region = env.GetEnv("S3_REGION", "us-east-1")

	// Match index
	cfg.MatchIndexDriver = env.GetEnv("MATCH_INDEX_DRIVER", MatchIndexFile)
	cfg.MatchIndexPath = env.GetEnv("MATCH_INDEX_PATH", "./storage/matches.json")
	cfg.RedisMatchIndexKey = env.GetEnv("REDIS_MATCH_INDEX_KEY", "labcheck:match_index")

	// Redis
	cfg.RedisHost = env.GetEnv("REDIS_HOST", "")
	cfg.RedisPassword = env.GetEnv("REDIS_PASSWORD", "")
	cfg.RedisStreamKey = env.GetEnv("REDIS_STREAM_KEY", "reports:stream")
	cfg.RedisConsumerGroup = env.GetEnv("REDIS_CONSUMER_GROUP", "reports:group")
	cfg.RedisDeadLetterKey = env.GetEnv("REDIS_DEAD_LETTER_KEY", "reports:dlq")
	cfg.StreamRetentionDuration = env.GetEnvDuration("STREAM_RETENTION_DURATION", time.Hour, 24*time.Hour)

	// Remote text extraction
	cfg.ExtractorURL = env.GetEnv("EXTRACTOR_URL", "")
	cfg.ExtractorAPIKey = env.GetEnv("EXTRACTOR_API_KEY", "")

	// JWT
	cfg.JWTSecret = env.GetEnv("JWT_SECRET", "")
	cfg.JWTIssuer = env.GetEnv("JWT_ISSUER", "labcheck")

	// Rate Limiting
	cfg.RateLimitRPS = env.GetEnvFloat("RATE_LIMIT_RPS", 10.0)

	// Check processing
	cfg.QueueYield = env.GetEnvDuration("QUEUE_YIELD_MS", time.Millisecond, 100*time.Millisecond)
	cfg.JobTimeout = env.GetEnvDuration("JOB_TIMEOUT_SECONDS", time.Second, 0)
	cfg.MaxUploadBytes = int64(env.GetEnvInt("MAX_UPLOAD_MB", 20)) << 20

	// Logging
	cfg.LogLevel = env.GetEnv("LOG_LEVEL", "info")

	// Server
	cfg.ServerPort = env.GetEnv("SERVER_PORT", "8080")
	cfg.MetricsPort = env.GetEnv("METRICS_PORT", "2112")

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required for the sqlite store")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo store")
		}
		if c.MongoDBName == "" {
			return fmt.Errorf("MONGO_DB_NAME is required for the mongo store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.TextStoreDriver {
	case TextStoreFS:
		if c.StorageDir == "" {
			return fmt.Errorf("STORAGE_DIR is required for the fs text store")
		}
	case TextStoreS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 text store")
		}
	default:
		return fmt.Errorf("unknown TEXT_STORE_DRIVER %q", c.TextStoreDriver)
	}

	switch c.MatchIndexDriver {
	case MatchIndexFile:
		if c.MatchIndexPath == "" {
			return fmt.Errorf("MATCH_INDEX_PATH is required for the file match index")
		}
	case MatchIndexRedis:
		if c.RedisHost == "" {
			return fmt.Errorf("REDIS_HOST is required for the redis match index")
		}
	default:
		return fmt.Errorf("unknown MATCH_INDEX_DRIVER %q", c.MatchIndexDriver)
	}

	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be greater than 0")
	}
	if c.QueueYield < 0 {
		return fmt.Errorf("QUEUE_YIELD_MS must not be negative")
	}
	if c.JobTimeout < 0 {
		return fmt.Errorf("JOB_TIMEOUT_SECONDS must not be negative")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be greater than 0")
	}
	if c.RedisHost != "" && c.StreamRetentionDuration <= 0 {
		return fmt.Errorf("STREAM_RETENTION_DURATION must be greater than 0")
	}
	return nil
}

// RedisEnabled reports whether a Redis server is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// AuthEnabled reports whether API routes require a JWT.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}
