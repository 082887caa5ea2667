package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// setupTestDir creates a temporary directory for test logs and resets global state
func setupTestDir(t *testing.T) (cleanup func()) {
	t.Helper()

	tempDir := t.TempDir()

	// Save original state
	origLogDir := logDir
	origInitErr := initErr
	origSessionID := sessionID
	origConsole := console
	origLevel := level.Level()

	// Reset global state
	logDir = tempDir
	initErr = nil
	initOnce = sync.Once{}
	sessionID = ""
	sessionIDOnce = sync.Once{}
	console = false
	level.SetLevel(zapcore.DebugLevel)
	sharedCore = nil
	fileWriter = nil

	return func() {
		_ = Shutdown()

		logDir = origLogDir
		initErr = origInitErr
		initOnce = sync.Once{}
		sessionID = origSessionID
		sessionIDOnce = sync.Once{}
		console = origConsole
		level.SetLevel(origLevel)
	}
}

type entry struct {
	Level  string `json:"level"`
	Logger string `json:"logger"`
	Msg    string `json:"msg"`
	RunID  string `json:"run_id"`
}

func readEntries(t *testing.T, path string) []entry {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer f.Close()

	var entries []entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("Log line is not JSON: %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	cleanup := setupTestDir(t)
	defer cleanup()

	logger, err := NewLogger("test-component")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.component != "test-component" {
		t.Errorf("Expected component 'test-component', got %q", logger.component)
	}

	if logger.SessionID() == "" {
		t.Error("Expected non-empty run ID")
	}

	if logger.LogPath() == "" {
		t.Error("Expected non-empty log path")
	}

	if _, err := os.Stat(logger.LogPath()); os.IsNotExist(err) {
		t.Errorf("Log file does not exist at %s", logger.LogPath())
	}
}

func TestLoggerWritesJSONLines(t *testing.T) {
	cleanup := setupTestDir(t)
	defer cleanup()

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	logger.Printf("Test message %d", 123)
	logger.Debugf("Debug message")
	logger.Infof("Info message")
	logger.Warnf("Warning message")
	logger.Errorf("Error message")

	entries := readEntries(t, logger.LogPath())

	expected := []entry{
		{Level: "info", Logger: "test", Msg: "Test message 123"},
		{Level: "debug", Logger: "test", Msg: "Debug message"},
		{Level: "info", Logger: "test", Msg: "Info message"},
		{Level: "warn", Logger: "test", Msg: "Warning message"},
		{Level: "error", Logger: "test", Msg: "Error message"},
	}
	if len(entries) != len(expected) {
		t.Fatalf("Expected %d entries, got %d", len(expected), len(entries))
	}
	for i, want := range expected {
		got := entries[i]
		if got.Level != want.Level || got.Logger != want.Logger || got.Msg != want.Msg {
			t.Errorf("Entry %d: expected %+v, got %+v", i, want, got)
		}
		if got.RunID != logger.SessionID() {
			t.Errorf("Entry %d: expected run_id %q, got %q", i, logger.SessionID(), got.RunID)
		}
	}
}

func TestMultipleComponents(t *testing.T) {
	cleanup := setupTestDir(t)
	defer cleanup()

	logger1, err := NewLogger("component1")
	if err != nil {
		t.Fatalf("Failed to create logger1: %v", err)
	}
	defer logger1.Close()

	logger2, err := NewLogger("component2")
	if err != nil {
		t.Fatalf("Failed to create logger2: %v", err)
	}
	defer logger2.Close()

	// They should share the same run ID and log file
	if logger1.SessionID() != logger2.SessionID() {
		t.Errorf("Expected same run ID, got %q and %q", logger1.SessionID(), logger2.SessionID())
	}

	if logger1.LogPath() != logger2.LogPath() {
		t.Errorf("Expected same log path, got %q and %q", logger1.LogPath(), logger2.LogPath())
	}

	logger1.Printf("Message from component1")
	logger2.Printf("Message from component2")

	seen := map[string]bool{}
	for _, e := range readEntries(t, logger1.LogPath()) {
		seen[e.Logger] = true
	}
	if !seen["component1"] {
		t.Error("Log missing component1 entries")
	}
	if !seen["component2"] {
		t.Error("Log missing component2 entries")
	}
}

func TestConfigureLevelFiltersEntries(t *testing.T) {
	cleanup := setupTestDir(t)
	defer cleanup()

	if err := Configure(Options{Level: "WARN"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	logger, err := NewLogger("levels")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	logger.Infof("dropped")
	logger.Warnf("kept")

	entries := readEntries(t, logger.LogPath())
	if len(entries) != 1 || entries[0].Msg != "kept" {
		t.Errorf("Expected only the warning entry, got %+v", entries)
	}
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	cleanup := setupTestDir(t)
	defer cleanup()

	if err := Configure(Options{Level: "chatty"}); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestWithAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core), "keepalive").With("session", "driver")

	logger.Infof("tick %d", 1)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "keepalive" {
		t.Errorf("Expected logger name keepalive, got %q", entries[0].LoggerName)
	}
	if entries[0].Message != "tick 1" {
		t.Errorf("Unexpected message %q", entries[0].Message)
	}
	if got := entries[0].ContextMap()["session"]; got != "driver" {
		t.Errorf("Expected session field driver, got %v", got)
	}
}

func TestGetSessionID(t *testing.T) {
	cleanup := setupTestDir(t)
	defer cleanup()

	id1 := GetSessionID()
	id2 := GetSessionID()

	if id1 != id2 {
		t.Errorf("Expected consistent run ID, got %q and %q", id1, id2)
	}

	if id1 == "" {
		t.Error("Expected non-empty run ID")
	}
}

func TestGetLogDirectory(t *testing.T) {
	cleanup := setupTestDir(t)
	defer cleanup()

	dir, err := GetLogDirectory()
	if err != nil {
		t.Fatalf("Failed to get log directory: %v", err)
	}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("Log directory does not exist or is not a directory: %s", dir)
	}
}

func TestLoggerClose(t *testing.T) {
	cleanup := setupTestDir(t)
	defer cleanup()

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}

	// Close again should be safe
	if err := logger.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestLogPathFormat(t *testing.T) {
	cleanup := setupTestDir(t)
	defer cleanup()

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	// Verify log file name format: <run-id>-portalkeeper.log
	fileName := filepath.Base(logger.LogPath())
	if !strings.HasSuffix(fileName, "-portalkeeper.log") {
		t.Errorf("Expected log file to end with '-portalkeeper.log', got %q", fileName)
	}

	runPart := strings.TrimSuffix(fileName, "-portalkeeper.log")
	if !strings.Contains(runPart, "-") {
		t.Errorf("Expected run ID part to contain dashes (UUID format), got %q", runPart)
	}
}

func TestFallbackCoreDoesNotDuplicateConsole(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	built := 0
	newConsole := func() zapcore.Core {
		built++
		return core
	}

	zap.New(fallbackCore([]zapcore.Core{core}, newConsole)).Info("console already configured")
	if logs.Len() != 1 {
		t.Errorf("expected each entry written once, got %d", logs.Len())
	}
	if built != 0 {
		t.Errorf("expected no extra console core, built %d", built)
	}

	zap.New(fallbackCore(nil, newConsole)).Info("console disabled")
	if logs.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", logs.Len())
	}
	if built != 1 {
		t.Errorf("expected one console core built for the disabled case, built %d", built)
	}
}
