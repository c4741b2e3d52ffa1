package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vergabeflow/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func reset(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = Close()
		Use(zap.NewNop(), config.LoggingConfig{})
	})
}

func TestGet_ProductionModeIsNoop(t *testing.T) {
	reset(t)
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core), config.LoggingConfig{DebugMode: false})

	Get(CategoryAPI).Info("dropped")

	assert.Equal(t, 0, logs.Len())
}

func TestGet_CategoryFilter(t *testing.T) {
	reset(t)
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core), config.LoggingConfig{
		DebugMode:  true,
		Categories: map[string]bool{"api": false},
	})

	Get(CategoryAPI).Info("filtered")
	Get(CategoryWizard).Infow("stage changed", "to", "summary")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "wizard", entry.LoggerName)
	assert.Equal(t, "stage changed", entry.Message)
	assert.Equal(t, "summary", entry.ContextMap()["to"])
}

func TestGet_CachesPerCategory(t *testing.T) {
	reset(t)
	core, _ := observer.New(zapcore.DebugLevel)
	Use(zap.New(core), config.LoggingConfig{DebugMode: true})

	assert.Same(t, Get(CategoryStore), Get(CategoryStore))
}

func TestInitialize_RequiresWorkspace(t *testing.T) {
	reset(t)
	assert.Error(t, Initialize("", config.LoggingConfig{DebugMode: true}))
}

func TestInitialize_ProductionCreatesNoFiles(t *testing.T) {
	reset(t)
	ws := t.TempDir()

	require.NoError(t, Initialize(ws, config.LoggingConfig{DebugMode: false}))

	_, err := os.Stat(filepath.Join(ws, ".vergabe", "logs"))
	assert.True(t, os.IsNotExist(err))
}

func TestInitialize_DebugWritesJSONFile(t *testing.T) {
	reset(t)
	ws := t.TempDir()

	require.NoError(t, Initialize(ws, config.LoggingConfig{DebugMode: true, Level: "debug"}))
	Get(CategoryExport).Infow("rendered", "pages", 3)
	require.NoError(t, Close())

	entries, err := os.ReadDir(filepath.Join(ws, ".vergabe", "logs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), "_vergabe.log"))

	data, err := os.ReadFile(filepath.Join(ws, ".vergabe", "logs", entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"logger":"export"`)
	assert.Contains(t, string(data), `"pages":3`)
}

func TestTimer(t *testing.T) {
	reset(t)
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core), config.LoggingConfig{DebugMode: true})

	timer := StartTimer(CategoryAPI, "generate-questions")
	elapsed := timer.Stop()

	assert.GreaterOrEqual(t, int64(elapsed), int64(0))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "generate-questions", logs.All()[0].ContextMap()["op"])
}
