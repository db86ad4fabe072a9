package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"STOCKFISH_PATH", "ANALYSIS_TIME_MS", "HTTP_ADDR", "LLM_BASE_URL", "LLM_MODEL", "SESSION_TIMEOUT_SEC", "LLM_PROVIDER", "LLM_MAX_CONNS", "LLM_EXTRA_HEADERS"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StockfishPath != DefaultStockfishPath || cfg.AnalysisTime != 2*time.Second || cfg.AnalysisMultiPV != 3 {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.SessionTimeout != time.Hour || cfg.HTTPAddr != ":8080" || cfg.LLMEnabled() {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.LLMProvider != ProviderOpenAI || cfg.LLMMaxConns != 16 || cfg.LLMHeaders != nil {
		t.Fatalf("llm defaults = %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STOCKFISH_PATH", "/opt/sf")
	t.Setenv("ENGINE_THREADS", "4")
	t.Setenv("ANALYSIS_TIME_MS", "500")
	t.Setenv("ANALYSIS_MULTIPV", "5")
	t.Setenv("ANALYSIS_CACHE_TTL_SEC", "0")
	t.Setenv("SESSION_TIMEOUT_SEC", "120")
	t.Setenv("LLM_BASE_URL", "http://llm.local/v1/")
	t.Setenv("LLM_MODEL", "chess-small")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StockfishPath != "/opt/sf" || cfg.EngineThreads != 4 || cfg.AnalysisTime != 500*time.Millisecond {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.AnalysisMultiPV != 5 || cfg.AnalysisCacheTTL != 0 || cfg.SessionTimeout != 2*time.Minute {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.LLMBaseURL != "http://llm.local/v1" || !cfg.LLMEnabled() {
		t.Fatalf("llm = %q %v", cfg.LLMBaseURL, cfg.LLMEnabled())
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	t.Setenv("ENGINE_HASH_MB", "lots")
	t.Setenv("SESSION_TIMEOUT_SEC", "0")
	t.Setenv("LLM_BASE_URL", "http://llm.local")
	t.Setenv("LLM_MODEL", "")
	_, err := Load()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, key := range []string{"ENGINE_HASH_MB", "SESSION_TIMEOUT_SEC", "LLM_MODEL"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoadLLMTransport(t *testing.T) {
	t.Setenv("LLM_BASE_URL", "http://llm.local/v1")
	t.Setenv("LLM_MODEL", "chess-small")
	t.Setenv("LLM_MAX_CONNS", "4")
	t.Setenv("LLM_EXTRA_HEADERS", "X-Org = chess, X-Trace=on")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLMMaxConns != 4 || len(cfg.LLMHeaders) != 2 || cfg.LLMHeaders["X-Org"] != "chess" || cfg.LLMHeaders["X-Trace"] != "on" {
		t.Fatalf("llm transport = %d %v", cfg.LLMMaxConns, cfg.LLMHeaders)
	}

	t.Setenv("LLM_MAX_CONNS", "0")
	t.Setenv("LLM_EXTRA_HEADERS", "X-Org")
	_, err = Load()
	if err == nil || !strings.Contains(err.Error(), "LLM_MAX_CONNS") || !strings.Contains(err.Error(), "LLM_EXTRA_HEADERS") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadGeminiProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("GEMINI_MODEL", "gemini-1.5-flash")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLMProvider != ProviderGemini || cfg.LLMAPIKey != "g-key" || cfg.LLMModel != "gemini-1.5-flash" || !cfg.LLMEnabled() {
		t.Fatalf("gemini = %+v", cfg)
	}

	t.Setenv("LLM_PROVIDER", "claude")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "LLM_PROVIDER") {
		t.Fatalf("err = %v", err)
	}
}
