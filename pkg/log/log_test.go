package log

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNopBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Infof("[Test] %d", 1)
		Error("[Test] failed", errors.New("boom"))
		Sync()
	})
}

func TestSetLoggerCapturesEntries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })

	Infof("[Coordinator] 文档入库完成, pages: %d", 3)
	Error("[Handler] 失败", errors.New("boom"))
	Warnw("slow", "latency", "2s")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "[Coordinator] 文档入库完成, pages: 3", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.Equal(t, "2s", entries[2].ContextMap()["latency"])
}

func TestBuildWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := Build("debug", "json", dir)
	require.NoError(t, err)
	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
