package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/cheese-analyzer/internal/chessbuilder"
)

const shutdownTimeout = 10 * time.Second

var (
	listenAddr  string
	warmEngine  bool
	originAllow []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (overrides HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&warmEngine, "warm", false, "start the engine before accepting requests instead of on first use")
	serveCmd.Flags().StringSliceVar(&originAllow, "ws-origin", nil, "extra websocket origin patterns")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.HTTPAddr = listenAddr
	}
	cfg.WSOrigins = append(cfg.WSOrigins, originAllow...)
	logger, err := initLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	deps, err := chessbuilder.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("shutdown_close_failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if warmEngine {
		wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := deps.Analyzer.Start(wctx); err != nil {
			// Requests retry the start; the service still comes up.
			logger.Warn("engine_warmup_failed", zap.Error(err))
		}
		cancel()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           deps.Server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http_listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("http_shutting_down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
