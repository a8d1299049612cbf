package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitAndComponentLogger(t *testing.T) {
	dir := t.TempDir()

	// Component logger created before Init must pick up the real handler.
	log := ForComponent(CompStatus)

	Init(Config{LogDir: dir, Level: "debug", Debug: true})
	defer Shutdown()

	log.Info("hello", "k", "v")

	data, err := os.ReadFile(filepath.Join(dir, "aoe.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"component":"status"`) {
		t.Errorf("missing component field: %s", out)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("missing message: %s", out)
	}
}

func TestLoggerBeforeInitDoesNotPanic(t *testing.T) {
	Shutdown()
	ForComponent(CompPoller).Info("discarded")
	Logger().Debug("also discarded")
}

func TestDiscardWithoutDebugOrDir(t *testing.T) {
	Init(Config{})
	defer Shutdown()

	// No file should be created anywhere; just verify logging is a no-op.
	ForComponent(CompCLI).Error("goes nowhere")
}
