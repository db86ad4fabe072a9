// Package cli defines the chess-analyzer commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/cheese-analyzer/internal/config"
	"github.com/park285/cheese-analyzer/internal/obslog"
)

var (
	enginePath string
	version    = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "chess-analyzer",
	Short: "Chess session and engine analysis service",
	Long: `chess-analyzer keeps per-session chess games, validates moves, and
analyses positions with a UCI engine. The same commands are reachable over
HTTP, a websocket stream, and a language-model chat path.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&enginePath, "engine", "", "UCI engine binary (overrides STOCKFISH_PATH)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(toolsCmd)
}

// loadConfig reads the environment and applies persistent flag overrides.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if enginePath != "" {
		cfg.StockfishPath = enginePath
	}
	return cfg, nil
}

func initLogger() (*zap.Logger, error) {
	logger, err := obslog.InitFromEnv()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger, nil
}
