package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Queue    QueueConfig
	Ingest   IngestConfig
	Audit    AuditConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds listener-related configuration
type ServerConfig struct {
	HealthAddr  string // gRPC health/reflection listener
	MetricsAddr string // Prometheus /metrics listener
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract     string
	Pdftoppm      string
	TesseractLang string
	TessdataDir   string
	DPI           int
	MaxPages      int
	PSM           int
	OEM           int
	Timeout       time.Duration
}

// LLMConfig holds model-backend configuration
type LLMConfig struct {
	BaseURL          string
	Model            string
	APIKey           string
	Temperature      float32
	Timeout          time.Duration
	RequestsPerSec   float64
	RetryMaxAttempts int
	RetryBackoff     time.Duration
}

// PipelineConfig holds the tunable extraction thresholds. The category
// schema can override the accept/reject split per category.
type PipelineConfig struct {
	SchemaPath            string  // category schema JSON; empty = embedded default
	MinCandidateConf      float32 // categorizer: discard candidates below this
	AcceptConfidence      float32 // validator: default accept threshold
	RejectCertainty       float32 // validator: failures at/above this certainty reject, below flag
	ReconcileTolerancePct float64 // assembler: line-item sum vs total tolerance, percent of total
	SnippetWorkers        int     // bound for per-snippet synthesis/validation
	WindowMaxTokens       int     // categorizer window size cap
}

// QueueConfig holds async processing queue configuration
type QueueConfig struct {
	Workers        int
	Size           int
	ProcessTimeout time.Duration
}

// IngestConfig holds filesystem ingestion configuration
type IngestConfig struct {
	WatchRoots  []string
	InitialScan bool
	Debounce    time.Duration
}

// AuditConfig holds the local audit store configuration
type AuditConfig struct {
	SQLitePath string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			HealthAddr:  getEnv("HEALTH_ADDR", ":8080"),
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		},
		OCR: OCRConfig{
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			Pdftoppm:      getEnv("PDFTOPPM_BIN", "pdftoppm"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			DPI:           getEnvAsInt("OCR_DPI", 300),
			MaxPages:      getEnvAsInt("OCR_MAX_PAGES", 0),
			PSM:           getEnvAsInt("OCR_PSM", 0),
			OEM:           getEnvAsInt("OCR_OEM", 0),
			Timeout:       getEnvAsDuration("OCR_TIMEOUT", 2*time.Minute),
		},
		LLM: LLMConfig{
			BaseURL:          getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:            getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:           getEnv("OPENAI_API_KEY", ""),
			Temperature:      getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:          getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			RequestsPerSec:   getEnvAsFloat64("OPENAI_REQUESTS_PER_SEC", 4),
			RetryMaxAttempts: getEnvAsInt("OPENAI_RETRY_MAX_ATTEMPTS", 3),
			RetryBackoff:     getEnvAsDuration("OPENAI_RETRY_BACKOFF", 500*time.Millisecond),
		},
		Pipeline: PipelineConfig{
			SchemaPath:            getEnv("CATEGORY_SCHEMA_PATH", ""),
			MinCandidateConf:      getEnvAsFloat32("MIN_CANDIDATE_CONFIDENCE", 0.30),
			AcceptConfidence:      getEnvAsFloat32("ACCEPT_CONFIDENCE", 0.60),
			RejectCertainty:       getEnvAsFloat32("REJECT_CERTAINTY", 0.80),
			ReconcileTolerancePct: getEnvAsFloat64("RECONCILE_TOLERANCE_PCT", 0.5),
			SnippetWorkers:        getEnvAsInt("SNIPPET_WORKERS", 4),
			WindowMaxTokens:       getEnvAsInt("WINDOW_MAX_TOKENS", 12),
		},
		Queue: QueueConfig{
			Workers:        getEnvAsInt("QUEUE_WORKERS", 4),
			Size:           getEnvAsInt("QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("QUEUE_PROCESS_TIMEOUT", 3*time.Minute),
		},
		Ingest: IngestConfig{
			WatchRoots:  getEnvAsList("WATCH_ROOTS", nil),
			InitialScan: getEnvAsBool("WATCH_INITIAL_SCAN", true),
			Debounce:    getEnvAsDuration("WATCH_DEBOUNCE", 500*time.Millisecond),
		},
		Audit: AuditConfig{
			SQLitePath: getEnv("AUDIT_SQLITE_PATH", "./audit.db"),
		},
	}
}

// Validate validates the loaded configuration for the daemon.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if len(c.Ingest.WatchRoots) == 0 {
		return NewAppError("CONFIG_ERROR", "WATCH_ROOTS is required", ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
