package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultStockfishPath = "/usr/games/stockfish"

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type AppConfig struct {
	StockfishPath string
	EngineThreads int
	EngineHashMB  int

	AnalysisTime     time.Duration
	AnalysisMultiPV  int
	AnalysisMaxDepth int
	AnalysisCacheTTL time.Duration

	SessionTimeout time.Duration
	HTTPAddr       string
	// WSOrigins are extra host patterns allowed to open /ws.
	WSOrigins []string

	RedisURL    string
	DatabaseURL string

	LLMProvider string
	LLMBaseURL  string
	LLMAPIKey   string
	LLMModel    string
	LLMTimeout  time.Duration
	LLMMaxConns int
	// LLMHeaders are sent with every model request.
	LLMHeaders map[string]string

	// MessagesDir optionally overrides the embedded chat catalog.
	MessagesDir string
}

func Default() *AppConfig {
	return &AppConfig{
		StockfishPath:    DefaultStockfishPath,
		EngineThreads:    1,
		EngineHashMB:     64,
		AnalysisTime:     2 * time.Second,
		AnalysisMultiPV:  3,
		AnalysisMaxDepth: 30,
		AnalysisCacheTTL: 10 * time.Minute,
		SessionTimeout:   time.Hour,
		HTTPAddr:         ":8080",
		LLMProvider:      ProviderOpenAI,
		LLMTimeout:       30 * time.Second,
		LLMMaxConns:      16,
	}
}

// Load reads the environment over Default. Malformed numbers are reported,
// not silently replaced.
func Load() (*AppConfig, error) {
	cfg := Default()
	var errs []error

	if v := env("STOCKFISH_PATH"); v != "" {
		cfg.StockfishPath = v
	}
	intVar(&errs, "ENGINE_THREADS", &cfg.EngineThreads, 1)
	intVar(&errs, "ENGINE_HASH_MB", &cfg.EngineHashMB, 1)
	msVar(&errs, "ANALYSIS_TIME_MS", &cfg.AnalysisTime)
	intVar(&errs, "ANALYSIS_MULTIPV", &cfg.AnalysisMultiPV, 1)
	intVar(&errs, "ANALYSIS_MAX_DEPTH", &cfg.AnalysisMaxDepth, 1)
	secVar(&errs, "ANALYSIS_CACHE_TTL_SEC", &cfg.AnalysisCacheTTL, true)
	secVar(&errs, "SESSION_TIMEOUT_SEC", &cfg.SessionTimeout, false)
	if v := env("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.WSOrigins = splitList(env("WS_ORIGINS"))

	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")

	if v := strings.ToLower(env("LLM_PROVIDER")); v != "" {
		cfg.LLMProvider = v
	}
	cfg.LLMBaseURL = strings.TrimRight(env("LLM_BASE_URL"), "/")
	cfg.LLMAPIKey = env("LLM_API_KEY")
	cfg.LLMModel = env("LLM_MODEL")
	msVar(&errs, "LLM_TIMEOUT_MS", &cfg.LLMTimeout)
	intVar(&errs, "LLM_MAX_CONNS", &cfg.LLMMaxConns, 1)
	headers, err := headerList(env("LLM_EXTRA_HEADERS"))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.LLMHeaders = headers
	cfg.MessagesDir = env("MESSAGES_DIR")

	switch cfg.LLMProvider {
	case ProviderOpenAI:
		if cfg.LLMBaseURL != "" && cfg.LLMModel == "" {
			errs = append(errs, errors.New("LLM_MODEL is required when LLM_BASE_URL is set"))
		}
	case ProviderGemini:
		if cfg.LLMAPIKey == "" {
			cfg.LLMAPIKey = env("GEMINI_API_KEY")
		}
		if cfg.LLMModel == "" {
			cfg.LLMModel = env("GEMINI_MODEL")
		}
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER: want %s or %s, got %q", ProviderOpenAI, ProviderGemini, cfg.LLMProvider))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LLMEnabled reports whether the chat path has a model behind it. Gemini has
// a default endpoint but needs a key.
func (c *AppConfig) LLMEnabled() bool {
	if c.LLMProvider == ProviderGemini {
		return c.LLMAPIKey != "" && c.LLMModel != ""
	}
	return c.LLMBaseURL != "" && c.LLMModel != ""
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// headerList parses "Name=value,Other=value".
func headerList(v string) (map[string]string, error) {
	items := splitList(v)
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(items))
	for _, item := range items {
		name, value, ok := strings.Cut(item, "=")
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("LLM_EXTRA_HEADERS: want Name=value, got %q", item)
		}
		out[name] = value
	}
	return out, nil
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

func intVar(errs *[]error, key string, dst *int, min int) {
	v := env(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		*errs = append(*errs, fmt.Errorf("%s: want an integer >= %d, got %q", key, min, v))
		return
	}
	*dst = n
}

func msVar(errs *[]error, key string, dst *time.Duration) {
	v := env(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: want positive milliseconds, got %q", key, v))
		return
	}
	*dst = time.Duration(n) * time.Millisecond
}

// secVar parses whole seconds. allowZero lets 0 disable the feature.
func secVar(errs *[]error, key string, dst *time.Duration, allowZero bool) {
	v := env(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		*errs = append(*errs, fmt.Errorf("%s: invalid seconds %q", key, v))
		return
	}
	*dst = time.Duration(n) * time.Second
}
