package chessbuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/park285/cheese-analyzer/internal/archive"
	"github.com/park285/cheese-analyzer/internal/cache"
	"github.com/park285/cheese-analyzer/internal/chat"
	"github.com/park285/cheese-analyzer/internal/chess"
	"github.com/park285/cheese-analyzer/internal/chess/uci"
	"github.com/park285/cheese-analyzer/internal/config"
	"github.com/park285/cheese-analyzer/internal/dispatch"
	"github.com/park285/cheese-analyzer/internal/httpapi"
	"github.com/park285/cheese-analyzer/internal/llm"
	"github.com/park285/cheese-analyzer/internal/msgcat"
	"github.com/park285/cheese-analyzer/internal/render"
	"github.com/park285/cheese-analyzer/internal/session"
)

const (
	cachePrefix   = "cheese:"
	connectTimeout = 5 * time.Second
)

// Deps is the wired application. Close releases everything New opened.
type Deps struct {
	Engine     *uci.Handle
	Analyzer   *chess.Analyzer
	Cache      *cache.CacheService
	Registry   *session.Registry
	Dispatcher *dispatch.Dispatcher
	Archive    *archive.Recorder
	Chat       *chat.Service
	Server     *httpapi.Server

	closers []func() error
}

// NewAnalyzer wires the engine, and the Redis result cache when REDIS_URL
// is set. The engine starts lazily on the first request.
func NewAnalyzer(cfg *config.AppConfig, logger *zap.Logger) (*uci.Handle, *chess.Analyzer, *cache.CacheService, error) {
	if cfg == nil {
		return nil, nil, nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.StockfishPath) == "" {
		return nil, nil, nil, fmt.Errorf("STOCKFISH_PATH is required for chess engine")
	}

	handle := uci.NewHandle(uci.HandleConfig{
		BinaryPath: cfg.StockfishPath,
		Options: uci.Options{
			Threads: cfg.EngineThreads,
			HashMB:  cfg.EngineHashMB,
			MultiPV: cfg.AnalysisMultiPV,
		},
		Logger: logger.Named("engine"),
	})

	opts := []chess.AnalyzerOption{chess.WithLogger(logger.Named("analysis"))}
	var cacheSvc *cache.CacheService
	if cfg.RedisURL != "" && cfg.AnalysisCacheTTL > 0 {
		cconf, err := cache.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		cconf.Prefix = cachePrefix
		cacheSvc, err = cache.NewCacheService(cconf, logger.Named("cache"))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init cache: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if err := cacheSvc.Ping(ctx); err != nil {
			// The cache is optional; analyses still run without it.
			logger.Warn("redis_unreachable", zap.Error(err))
		}
		opts = append(opts, chess.WithResultCache(cacheSvc, cfg.AnalysisCacheTTL))
	}
	return handle, chess.NewAnalyzer(handle, opts...), cacheSvc, nil
}

func New(cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Deps{}
	ok := false
	defer func() {
		if !ok {
			_ = d.Close()
		}
	}()

	handle, analyzer, cacheSvc, err := NewAnalyzer(cfg, logger)
	if err != nil {
		return nil, err
	}
	d.Engine, d.Analyzer, d.Cache = handle, analyzer, cacheSvc
	d.closers = append(d.closers, analyzer.Stop)
	if cacheSvc != nil {
		d.closers = append(d.closers, cacheSvc.Close)
	}

	repo, closeRepo, err := openRepository(cfg, logger)
	if err != nil {
		return nil, err
	}
	if closeRepo != nil {
		d.closers = append(d.closers, closeRepo)
	}
	d.Archive = archive.NewRecorder(repo, logger.Named("archive"))

	d.Registry = session.NewRegistry(
		session.WithTimeout(cfg.SessionTimeout),
		session.WithLogger(logger.Named("session")),
	)
	d.Dispatcher, err = dispatch.New(d.Registry, analyzer, d.Archive, dispatch.Config{
		Budget: chess.Budget{
			Time:       cfg.AnalysisTime,
			Variations: cfg.AnalysisMultiPV,
			Depth:      cfg.AnalysisMaxDepth,
		},
	}, logger.Named("dispatch"))
	if err != nil {
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}
	d.Registry.OnEvict(d.Dispatcher.ArchiveEvicted)

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d.Chat, err = chat.NewService(NewProvider(cfg, logger), d.Dispatcher, catalog, cfg.LLMTimeout, logger.Named("chat"))
	if err != nil {
		return nil, fmt.Errorf("init chat: %w", err)
	}

	d.Server, err = httpapi.New(httpapi.Deps{
		Commands: d.Dispatcher,
		Sessions: d.Registry,
		Chat:     d.Chat,
		Games:    d.Archive,
		Renderer: render.NewBoardRenderer(render.DefaultSquareSize),
		Engine:   analyzer,
	}, httpapi.Config{
		OriginPatterns: cfg.WSOrigins,
		CommandTimeout: cfg.AnalysisTime + cfg.LLMTimeout*2,
	}, logger.Named("http"))
	if err != nil {
		return nil, fmt.Errorf("init http: %w", err)
	}

	ok = true
	return d, nil
}

// openRepository uses Postgres when DATABASE_URL is set and memory otherwise.
func openRepository(cfg *config.AppConfig, logger *zap.Logger) (archive.Repository, func() error, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Info("archive_in_memory")
		return archive.NewMemoryRepository(), nil, nil
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := archive.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("archive schema: %w", err)
	}
	return archive.NewRepository(db), db.Close, nil
}

// Close archives live sessions, then releases the engine and connections in
// reverse order of creation.
func (d *Deps) Close() error {
	if d.Registry != nil {
		d.Registry.ClearAll()
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// NewProvider picks the language-model backend named by LLM_PROVIDER. It
// returns nil when the chat path has no model configured.
func NewProvider(cfg *config.AppConfig, logger *zap.Logger) llm.Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.LLMEnabled() {
		logger.Info("llm_disabled", zap.String("provider", cfg.LLMProvider), zap.String("reason", "model or credentials not set"))
		return nil
	}
	opts := []llm.Option{
		llm.WithTimeout(cfg.LLMTimeout),
		llm.WithMaxConnsPerHost(cfg.LLMMaxConns),
	}
	if len(cfg.LLMHeaders) > 0 {
		opts = append(opts, llm.WithHeaderProvider(llm.StaticHeaders(cfg.LLMHeaders)))
	}
	logger.Info("llm_enabled",
		zap.String("provider", cfg.LLMProvider),
		zap.String("model", cfg.LLMModel),
		zap.Int("max_conns", cfg.LLMMaxConns),
		zap.Int("extra_headers", len(cfg.LLMHeaders)),
	)
	if cfg.LLMProvider == config.ProviderGemini {
		return llm.NewGeminiClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, opts...)
	}
	return llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, opts...)
}
