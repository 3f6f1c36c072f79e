package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// OpenAIConfig holds settings for the embedding/completion backend.
// BaseURL may point at any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	EmbedModel string
	ChatModel  string
	TimeoutSec int
}

// UploadConfig holds resumable-upload policy knobs: size-tier boundaries for
// part sizing, the retention window after which abandoned sessions are
// reaped, and the grace window that keeps the reaper away from sessions
// touched moments ago (possibly mid-merge).
type UploadConfig struct {
	SmallFileLimit  int64 // files up to this size use SmallPartSize
	MediumFileLimit int64 // files up to this size use MediumPartSize
	SmallPartSize   int64
	MediumPartSize  int64
	LargePartSize   int64
	Retention       time.Duration
	ReapInterval    time.Duration
	ReapGrace       time.Duration
}

// PipelineConfig holds segmentation and embedding settings.
type PipelineConfig struct {
	SegmentSize    int // target segment length in characters
	SegmentOverlap int // characters shared with the previous segment
	EmbedWorkers   int // bounded fan-out for per-segment embedding calls
}

// MemoryConfig holds conversation-memory compaction thresholds.
type MemoryConfig struct {
	SummarizeThreshold int // message count that triggers compaction
	RecentWindow       int // messages returned alongside a summary
	HistoryCap         int // full-history bound for unsummarized sessions
}

// RetrievalConfig holds similarity-search settings.
type RetrievalConfig struct {
	TopK int
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost   string
	Port      string
	Database  DatabaseConfig
	MinIO     MinIOConfig
	OpenAI    OpenAIConfig
	Upload    UploadConfig
	Pipeline  PipelineConfig
	Memory    MemoryConfig
	Retrieval RetrievalConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost: getEnv("APP_HOST", "localhost:8080"),
		Port:    getEnv("PORT", "8080"), // default only for non-sensitive value
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		OpenAI: OpenAIConfig{
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			BaseURL:    getEnv("OPENAI_BASE_URL", ""),
			EmbedModel: getEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
			ChatModel:  getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			TimeoutSec: getEnvInt("OPENAI_TIMEOUT_SEC", 60),
		},
		Upload: UploadConfig{
			SmallFileLimit:  getEnvInt64("UPLOAD_SMALL_FILE_LIMIT", 50*1024*1024),
			MediumFileLimit: getEnvInt64("UPLOAD_MEDIUM_FILE_LIMIT", 100*1024*1024),
			SmallPartSize:   getEnvInt64("UPLOAD_SMALL_PART_SIZE", 2*1024*1024),
			MediumPartSize:  getEnvInt64("UPLOAD_MEDIUM_PART_SIZE", 5*1024*1024),
			LargePartSize:   getEnvInt64("UPLOAD_LARGE_PART_SIZE", 10*1024*1024),
			Retention:       time.Duration(getEnvInt("UPLOAD_RETENTION_HOURS", 24)) * time.Hour,
			ReapInterval:    time.Duration(getEnvInt("UPLOAD_REAP_INTERVAL_MIN", 60)) * time.Minute,
			ReapGrace:       time.Duration(getEnvInt("UPLOAD_REAP_GRACE_MIN", 10)) * time.Minute,
		},
		Pipeline: PipelineConfig{
			SegmentSize:    getEnvInt("PIPELINE_SEGMENT_SIZE", 1000),
			SegmentOverlap: getEnvInt("PIPELINE_SEGMENT_OVERLAP", 200),
			EmbedWorkers:   getEnvInt("PIPELINE_EMBED_WORKERS", 4),
		},
		Memory: MemoryConfig{
			SummarizeThreshold: getEnvInt("MEMORY_SUMMARIZE_THRESHOLD", 15),
			RecentWindow:       getEnvInt("MEMORY_RECENT_WINDOW", 8),
			HistoryCap:         getEnvInt("MEMORY_HISTORY_CAP", 20),
		},
		Retrieval: RetrievalConfig{
			TopK: getEnvInt("RETRIEVAL_TOP_K", 5),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}
