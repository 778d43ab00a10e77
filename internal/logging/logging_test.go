package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetBeforeInitializeIsNoop(t *testing.T) {
	l := Get(CategoryEnforce)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	// Must not panic or write anywhere.
	l.Infof("dropped message %d", 1)
}

func TestInitializeCreatesCategoryFiles(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, true); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	t.Cleanup(Sync)

	Get(CategoryFirewall).Infow("preemptive block", "hash", "abc123")
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, "logs", "firewall.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log output")
	}
}
