package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// setupTestDir points file logging at a temporary directory and restores the
// previous settings afterwards.
func setupTestDir(t *testing.T, verbosity string) string {
	t.Helper()

	dir := t.TempDir()
	orig := currentSettings()
	Configure(Settings{Dir: dir, Verbosity: verbosity})
	t.Cleanup(func() { Configure(orig) })
	return dir
}

type entry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Component string `json:"component"`
	Session   string `json:"session"`
}

func readEntries(t *testing.T, path string) []entry {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	var entries []entry
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "" {
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("Log line is not JSON: %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	dir := setupTestDir(t, "normal")

	logger, err := NewLogger("test-component")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.Component() != "test-component" {
		t.Errorf("Expected component 'test-component', got %q", logger.Component())
	}

	if logger.SessionID() == "" {
		t.Error("Expected non-empty session ID")
	}

	want := filepath.Join(dir, logger.SessionID()+"-rendercrawl.log")
	if logger.LogPath() != want {
		t.Errorf("Expected log path %q, got %q", want, logger.LogPath())
	}

	if _, err := os.Stat(logger.LogPath()); os.IsNotExist(err) {
		t.Errorf("Log file does not exist at %s", logger.LogPath())
	}
}

func TestLoggerFormatting(t *testing.T) {
	setupTestDir(t, "debug")

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Printf("Test message %d", 123)
	logger.Debugf("Debug message")
	logger.Infof("Info message")
	logger.Warnf("Warning message")
	logger.Errorf("Error message")

	if err := logger.Close(); err != nil {
		t.Fatalf("Failed to close logger: %v", err)
	}

	entries := readEntries(t, logger.LogPath())
	expected := []entry{
		{Level: "info", Msg: "Test message 123"},
		{Level: "debug", Msg: "Debug message"},
		{Level: "info", Msg: "Info message"},
		{Level: "warn", Msg: "Warning message"},
		{Level: "error", Msg: "Error message"},
	}

	if len(entries) != len(expected) {
		t.Fatalf("Expected %d entries, got %d", len(expected), len(entries))
	}
	for i, want := range expected {
		got := entries[i]
		if got.Level != want.Level || got.Msg != want.Msg {
			t.Errorf("Entry %d: expected %s %q, got %s %q", i, want.Level, want.Msg, got.Level, got.Msg)
		}
		if got.Component != "test" {
			t.Errorf("Entry %d: expected component 'test', got %q", i, got.Component)
		}
		if got.Session != logger.SessionID() {
			t.Errorf("Entry %d: expected session %q, got %q", i, logger.SessionID(), got.Session)
		}
	}
}

func TestVerbosityFiltersDebug(t *testing.T) {
	setupTestDir(t, "normal")

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	logger.Debugf("hidden")
	logger.Infof("shown")
	_ = logger.Close()

	entries := readEntries(t, logger.LogPath())
	if len(entries) != 1 || entries[0].Msg != "shown" {
		t.Errorf("Expected only the info entry, got %+v", entries)
	}
}

func TestMultipleComponents(t *testing.T) {
	setupTestDir(t, "normal")

	logger1, err := NewLogger("component1")
	if err != nil {
		t.Fatalf("Failed to create logger1: %v", err)
	}

	logger2, err := NewLogger("component2")
	if err != nil {
		t.Fatalf("Failed to create logger2: %v", err)
	}

	// They should share the same session ID and log file
	if logger1.SessionID() != logger2.SessionID() {
		t.Errorf("Expected same session ID, got %q and %q", logger1.SessionID(), logger2.SessionID())
	}

	if logger1.LogPath() != logger2.LogPath() {
		t.Errorf("Expected same log path, got %q and %q", logger1.LogPath(), logger2.LogPath())
	}

	logger1.Printf("Message from component1")
	logger2.Printf("Message from component2")
	_ = logger1.Close()
	_ = logger2.Close()

	components := map[string]bool{}
	for _, e := range readEntries(t, logger1.LogPath()) {
		components[e.Component] = true
	}
	if !components["component1"] || !components["component2"] {
		t.Errorf("Expected entries from both components, got %v", components)
	}
}

func TestNewLogger_FallsBackToStderr(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	orig := currentSettings()
	Configure(Settings{Dir: filepath.Join(blocker, "logs")})
	t.Cleanup(func() { Configure(orig) })

	logger, err := NewLogger("test")
	if err == nil {
		t.Fatal("Expected an error when the log directory cannot be created")
	}
	if logger == nil {
		t.Fatal("Expected a fallback logger")
	}
	if logger.LogPath() != "" {
		t.Errorf("Expected no log path for fallback logger, got %q", logger.LogPath())
	}
	if logger.Writer() != os.Stderr {
		t.Error("Expected fallback logger to write to stderr")
	}
}

func TestNewLogger_StderrWithoutDir(t *testing.T) {
	orig := currentSettings()
	Configure(Settings{})
	t.Cleanup(func() { Configure(orig) })

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if logger.LogPath() != "" {
		t.Errorf("Expected no log path, got %q", logger.LogPath())
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close on stderr logger returned %v", err)
	}
}

func TestLogger_WithAndStructured(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewWithCore("crawl", core)

	child := logger.With("url", "https://example.com")
	child.Infow("crawl failed", "stage", "navigating")
	logger.Warnw("plain")

	all := logs.All()
	if len(all) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(all))
	}

	fields := all[0].ContextMap()
	if fields["url"] != "https://example.com" || fields["stage"] != "navigating" || fields["component"] != "crawl" {
		t.Errorf("Unexpected fields on child entry: %v", fields)
	}
	if _, ok := all[1].ContextMap()["url"]; ok {
		t.Error("Parent logger should not carry child fields")
	}
	if child.Component() != "crawl" {
		t.Errorf("Expected child component 'crawl', got %q", child.Component())
	}
}

func TestNop(t *testing.T) {
	logger := Nop("quiet")
	logger.Errorf("dropped %d", 1)
	if logger.Zap() == nil {
		t.Error("Expected a zap logger")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close returned %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	setupTestDir(t, "normal")

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("First close returned %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Second close returned %v", err)
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		verbosity string
		want      zapcore.Level
	}{
		{"quiet", zapcore.WarnLevel},
		{"normal", zapcore.InfoLevel},
		{"verbose", zapcore.DebugLevel},
		{"debug", zapcore.DebugLevel},
		{"", zapcore.InfoLevel},
		{"unknown", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := LevelFor(tt.verbosity); got != tt.want {
			t.Errorf("LevelFor(%q) = %v, want %v", tt.verbosity, got, tt.want)
		}
	}
}

func TestGetSessionID(t *testing.T) {
	id1 := GetSessionID()
	id2 := GetSessionID()

	if id1 != id2 {
		t.Errorf("Expected consistent session ID, got %q and %q", id1, id2)
	}

	if id1 == "" {
		t.Error("Expected non-empty session ID")
	}
}
