package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "relay.log")

	logger, err := New(logPath, false)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("chain started", zap.String("chain", "planner->coder"))
	logger.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(data), "chain started") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestNewVerboseEnablesDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "relay.log")

	logger, err := New(logPath, true)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("resolver input")
	logger.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "resolver input") {
		t.Error("debug entry missing with verbose enabled")
	}
}
