package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/resilience"
)

// Config for the OpenAI-compatible client.
type Config struct {
	APIKey         string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL        string        // default https://api.openai.com/v1
	Model          string        // e.g., "gpt-4o-mini"
	Temperature    float32       // 0..2
	Timeout        time.Duration // http client timeout
	RequestsPerSec float64       // client-side rate limit, 0 = default

	Resilience resilience.Config
}

// Client implements the pipeline's three model-backed capabilities
// (classify, extract, check) over chat completions.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	exec    *resilience.Executor
	log     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		exec:    resilience.NewExecutor(cfg.Resilience),
		log:     logger,
	}
}
