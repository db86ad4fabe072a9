package obslog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Process-wide logger. Components receive it explicitly; L exists for the
// CLI entry points.
var globalLogger = zap.NewNop()

func L() *zap.Logger { return globalLogger }

const (
	FormatLegacy  = "legacy"
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Options struct {
	Level     string
	Format    string
	ToConsole bool
	ToFile    bool
	FilePath  string
	Caller    bool
	// Console overrides os.Stdout.
	Console io.Writer
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_TO_CONSOLE, LOG_TO_FILE,
// LOG_FILE and LOG_CALLER.
func OptionsFromEnv() Options {
	return Options{
		Level:     getenvDefault("LOG_LEVEL", "info"),
		Format:    getenvDefault("LOG_FORMAT", FormatConsole),
		ToConsole: envBool("LOG_TO_CONSOLE", true),
		ToFile:    envBool("LOG_TO_FILE", false),
		FilePath:  getenvDefault("LOG_FILE", filepath.Join("logs", "chess-analyzer.log")),
		Caller:    envBool("LOG_CALLER", false),
	}
}

// InitFromEnv builds the process logger from the environment and installs it
// as L and zap's global.
func InitFromEnv() (*zap.Logger, error) {
	logger, err := New(OptionsFromEnv())
	if err != nil {
		return nil, err
	}
	globalLogger = logger
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func New(opts Options) (*zap.Logger, error) {
	level := parseLevel(opts.Level)
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	switch format {
	case FormatLegacy, FormatJSON, FormatConsole:
	default:
		format = FormatConsole
	}

	var cores []zapcore.Core
	if opts.ToConsole {
		out := opts.Console
		if out == nil {
			out = os.Stdout
		}
		cores = append(cores, zapcore.NewCore(encoderFor(format), zapcore.AddSync(out), level))
	}
	if opts.ToFile {
		path := strings.TrimSpace(opts.FilePath)
		if path == "" {
			return nil, fmt.Errorf("LOG_TO_FILE set without LOG_FILE")
		}
		if err := ensureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoderFor(format), zapcore.AddSync(f), level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
	if opts.Caller || format == FormatLegacy {
		logger = logger.WithOptions(zap.AddCaller())
	}
	return logger, nil
}

func encoderFor(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	switch format {
	case FormatJSON:
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	case FormatLegacy:
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.ConsoleSeparator = " | "
		return zapcore.NewConsoleEncoder(cfg)
	default:
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
}

func ensureDir(dir string) error {
	if strings.TrimSpace(dir) == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLevel(s string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func envBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
