// Package log 提供基于 zap 的全局日志记录器。
// 未调用 Init 之前使用 no-op logger，测试与工具代码可以直接调用日志函数。
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFileName 是 outputPath 目录下的日志文件名。
const LogFileName = "pdf-rag.log"

var current atomic.Pointer[zap.SugaredLogger]

func init() {
	current.Store(zap.NewNop().Sugar())
}

func sugar() *zap.SugaredLogger { return current.Load() }

// Build 按配置构建 zap.Logger。format 为 console 时使用彩色开发格式，否则输出 JSON。
// outputPath 非空时同时写入 stdout 和 {outputPath}/pdf-rag.log。
func Build(level, format, outputPath string) (*zap.Logger, error) {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	var zapConfig zap.Config
	if format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapConfig.Level = logLevel
	zapConfig.OutputPaths = []string{"stdout"}
	if outputPath != "" {
		if err := os.MkdirAll(outputPath, 0o755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, filepath.Join(outputPath, LogFileName))
	}
	return zapConfig.Build()
}

// Init 初始化全局 logger，失败时 panic。
func Init(level, format, outputPath string) {
	logger, err := Build(level, format, outputPath)
	if err != nil {
		panic(err)
	}
	SetLogger(logger)
}

// SetLogger 替换全局 logger。
func SetLogger(logger *zap.Logger) {
	current.Store(logger.Sugar())
}

func Debugf(template string, args ...interface{}) {
	sugar().Debugf(template, args...)
}

// Info 记录一条 info 级别的日志
func Info(msg string) {
	sugar().Info(msg)
}

// Infof 使用格式化字符串记录一条 info 级别的日志
func Infof(template string, args ...interface{}) {
	sugar().Infof(template, args...)
}

// Infow 使用键值对记录一条 info 级别的结构化日志。
func Infow(msg string, keysAndValues ...interface{}) {
	sugar().Infow(msg, keysAndValues...)
}

// Warnf 使用格式化字符串记录一条 warn 级别的日志
func Warnf(template string, args ...interface{}) {
	sugar().Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	sugar().Warnw(msg, keysAndValues...)
}

// Error 记录一条 error 级别的日志，并附带 error 信息
func Error(msg string, err error) {
	sugar().Errorw(msg, "error", err)
}

func Errorf(template string, args ...interface{}) {
	sugar().Errorf(template, args...)
}

// Fatal 记录一条 fatal 级别的日志，并附带 error 信息，然后退出程序
func Fatal(msg string, err error) {
	sugar().Fatalw(msg, "error", err)
}

func Fatalf(template string, args ...interface{}) {
	sugar().Fatalf(template, args...)
}

// Sync 将缓冲区中的日志写入底层 Writer。
func Sync() {
	_ = sugar().Sync()
}
