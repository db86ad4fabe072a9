package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/cheese-analyzer/internal/chess"
	"github.com/park285/cheese-analyzer/internal/chess/rules"
	"github.com/park285/cheese-analyzer/internal/chessbuilder"
	"github.com/park285/cheese-analyzer/internal/dispatch"
)

var (
	analyzeFEN     string
	analyzeTime    time.Duration
	analyzeMultiPV int
	analyzeDepth   int
	analyzeJSON    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyse one position and print the result",
	Example: `  chess-analyzer analyze --fen "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
  chess-analyzer analyze --time 5s --multipv 1 --json`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFEN, "fen", rules.StartFEN, "position to analyse")
	analyzeCmd.Flags().DurationVar(&analyzeTime, "time", 0, "time budget (default ANALYSIS_TIME_MS)")
	analyzeCmd.Flags().IntVar(&analyzeMultiPV, "multipv", 0, "number of ranked moves (default ANALYSIS_MULTIPV)")
	analyzeCmd.Flags().IntVar(&analyzeDepth, "depth", 0, "optional depth limit")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full envelope as JSON")
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if analyzeDepth < 0 || analyzeDepth > chess.MaxDepth {
		return fmt.Errorf("--depth must be within 0..%d", chess.MaxDepth)
	}
	budget := chess.Budget{Time: cfg.AnalysisTime, Variations: cfg.AnalysisMultiPV, Depth: analyzeDepth}
	if analyzeTime > 0 {
		budget.Time = analyzeTime
	}
	if analyzeMultiPV > 0 {
		budget.Variations = analyzeMultiPV
	}

	handle, analyzer, cacheSvc, err := chessbuilder.NewAnalyzer(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = handle.Stop() }()
	if cacheSvc != nil {
		defer func() { _ = cacheSvc.Close() }()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), budget.Deadline())
	defer cancel()
	res, err := analyzer.Analyze(ctx, strings.TrimSpace(analyzeFEN), budget)
	if analyzeJSON {
		env := dispatch.AnalysisEnvelope(res, analyzeDepth, err)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(env); encErr != nil {
			return encErr
		}
		if err != nil {
			return fmt.Errorf("analysis failed: %s", env.Error.Code)
		}
		return nil
	}
	if err != nil {
		de := dispatch.ToDomainError(err)
		return fmt.Errorf("%s: %s", de.Code, de.Message)
	}
	printAnalysis(cmd.OutOrStdout(), res)
	return nil
}

func printAnalysis(w io.Writer, res chess.AnalysisResult) {
	fmt.Fprintf(w, "FEN:        %s\n", res.FEN)
	fmt.Fprintf(w, "To move:    %s\n", res.SideToMove)
	fmt.Fprintf(w, "Best move:  %s (%s)\n", res.BestMove, res.BestMoveUCI)
	fmt.Fprintf(w, "Evaluation: %s\n", res.Evaluation)
	if len(res.PrincipalVariation) > 0 {
		fmt.Fprintf(w, "Line:       %s\n", strings.Join(res.PrincipalVariation, " "))
	}
	for _, rm := range res.Ranked {
		fmt.Fprintf(w, "  %d. %-7s %-8s %s\n", rm.Rank, rm.Move, rm.Evaluation, strings.Join(rm.Line, " "))
	}
	fmt.Fprintf(w, "Depth %d, %d nodes, %d ms\n", res.Diagnostics.Depth, res.Diagnostics.Nodes, res.Diagnostics.WallTimeMS)
}
