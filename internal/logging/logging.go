// Package logging provides categorized file-based logging for ricp.
// Logs are written under <data-dir>/logs/ with one file per category.
// Until Initialize is called, Get returns a no-op logger so library code
// can log unconditionally.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system.
type Category string

const (
	CategoryRegistry       Category = "registry"       // Catalog validation
	CategoryMortality      Category = "mortality"      // Mortality tracker updates
	CategoryFirewall       Category = "firewall"       // Fingerprint index and predictive blocks
	CategoryEnforce        Category = "enforce"        // Enforcement decisions
	CategoryTTE            Category = "tte"            // Track lifecycle and promotion
	CategoryRepair         Category = "repair"         // Directive generation
	CategoryCounterfactual Category = "counterfactual" // Composition and cut set search
	CategoryRunner         Category = "runner"         // Run orchestration
	CategoryStore          Category = "store"          // Store load/persist and recovery
)

var (
	mu      sync.Mutex
	loggers = make(map[Category]*zap.SugaredLogger)
	logsDir string
	debug   bool
)

// Initialize sets the logs directory. Call once at startup; safe to skip in
// tests (loggers stay no-op).
func Initialize(dataDir string, verbose bool) error {
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	logsDir = dir
	debug = verbose
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

// Get returns the logger for a category, creating it on first use.
func Get(cat Category) *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[cat]; ok {
		return l
	}
	if logsDir == "" {
		l := zap.NewNop().Sugar()
		loggers[cat] = l
		return l
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	path := filepath.Join(logsDir, string(cat)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l := zap.NewNop().Sugar()
		loggers[cat] = l
		return l
	}

	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(f), level)
	l := zap.New(core).Named(string(cat)).Sugar()
	loggers[cat] = l
	return l
}

// Sync flushes every open category logger.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		_ = l.Sync()
	}
}
