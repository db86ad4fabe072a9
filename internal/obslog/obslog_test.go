package obslog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewJSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: FormatJSON, ToConsole: true, Console: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Debug("engine_started", zap.String("state", "running"))
	_ = logger.Sync()

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["msg"] != "engine_started" || entry["state"] != "running" || entry["level"] != "debug" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: FormatConsole, ToConsole: true, Console: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	logger, err := New(Options{Level: "info", Format: FormatLegacy, ToFile: true, FilePath: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("archived")
	_ = logger.Sync()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), " | archived") {
		t.Fatalf("file = %q", data)
	}
}

func TestNoSinksIsNop(t *testing.T) {
	logger, err := New(Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("expected nop logger")
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_TO_CONSOLE", "false")
	t.Setenv("LOG_TO_FILE", "yes")
	t.Setenv("LOG_FILE", "/tmp/x.log")
	t.Setenv("LOG_CALLER", "")
	got := OptionsFromEnv()
	if got.Level != "debug" || got.Format != "json" || got.ToConsole || !got.ToFile || got.FilePath != "/tmp/x.log" || got.Caller {
		t.Fatalf("options = %+v", got)
	}
	if parseLevel("bogus") != zapcore.InfoLevel {
		t.Fatalf("bad level should fall back to info")
	}
}
