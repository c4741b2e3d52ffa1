// Package logging provides config-driven categorized logging for vergabeflow.
// All categories share one zap core; logs go to <workspace>/.vergabe/logs/ when
// debug_mode is enabled. In production mode every category logger is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vergabeflow/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot    Category = "boot"    // Boot/initialization
	CategorySession Category = "session" // Session gate, identity provider
	CategoryAPI     Category = "api"     // Generation service calls
	CategoryWizard  Category = "wizard"  // Wizard transitions
	CategoryExport  Category = "export"  // PDF rendering
	CategoryStore   Category = "store"   // History database
	CategoryUI      Category = "ui"      // TUI events
)

var (
	mu       sync.RWMutex
	base     = zap.NewNop()
	cfg      config.LoggingConfig
	logFile  *os.File
	loggers  = make(map[Category]*zap.SugaredLogger)
	nopSugar = zap.NewNop().Sugar()
)

// Initialize sets up file logging below workspace.
// Should be called once at startup. A no-op unless lc.DebugMode is set.
func Initialize(workspace string, lc config.LoggingConfig) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}
	if !lc.DebugMode {
		Use(zap.NewNop(), lc)
		return nil
	}

	logsDir := filepath.Join(workspace, ".vergabe", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	// Date prefix for easy rotation
	name := fmt.Sprintf("%s_vergabe.log", time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(logsDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	level, err := zapcore.ParseLevel(normalizeLevel(lc.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if lc.Format == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(f), level)
	Use(zap.New(core, zap.AddCaller()), lc)

	mu.Lock()
	logFile = f
	mu.Unlock()

	boot := Get(CategoryBoot)
	boot.Infow("logging initialized", "workspace", workspace, "logs_dir", logsDir, "level", level.String())
	return nil
}

// Use installs l as the shared logger. Category filtering still follows lc.
func Use(l *zap.Logger, lc config.LoggingConfig) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	base = l
	cfg = lc
	loggers = make(map[Category]*zap.SugaredLogger)
}

// Get returns (or creates) the logger for the given category.
// Returns a no-op logger if debug mode or the category is disabled.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	enabled := cfg.IsCategoryEnabled(string(category))
	mu.RUnlock()

	if !enabled {
		return nopSugar
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := base.Named(string(category)).Sugar()
	loggers[category] = l
	return l
}

// Timer logs the duration of an operation on Stop.
type Timer struct {
	log   *zap.SugaredLogger
	op    string
	start time.Time
}

// StartTimer begins timing op in category.
func StartTimer(category Category, op string) *Timer {
	return &Timer{log: Get(category), op: op, start: time.Now()}
}

// Stop logs the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.log.Debugw("operation finished", "op", t.op, "elapsed", elapsed)
	return elapsed
}

// Close flushes and closes the log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

func normalizeLevel(level string) string {
	switch level {
	case "":
		return "info"
	case "warning":
		return "warn"
	}
	return level
}
