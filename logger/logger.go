package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log 全局日志，Init 之前是空实现，测试中无需初始化
var Log = zap.NewNop().Sugar()

// Init 初始化生产环境 zap 日志，level 为空时使用 info
func Init(level string) error {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	Log = logger.Sugar()
	return nil
}

// Sync flushes buffered entries; call before exit.
func Sync() {
	_ = Log.Sync()
}
