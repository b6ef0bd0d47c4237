package logger

import (
	"fmt"
	"os"
	"sync"
)

// LegacyEnv selects the fmt-based logger when set to "true"
const LegacyEnv = "GITBOX_USE_LEGACY_LOGGER"

var (
	defaultLogger Logger
	mu            sync.RWMutex
	initialized   bool
)

// New 依設定建立 logger（不影響全域 logger）
func New(config Config) (Logger, error) {
	if os.Getenv(LegacyEnv) == "true" {
		legacy := NewLegacyLogger(config.Console)
		legacy.SetLevel(config.Level)
		if len(config.Attrs) > 0 {
			return legacy.With(config.Attrs...), nil
		}
		return legacy, nil
	}
	return NewSlogLogger(config)
}

// Init 初始化全域 logger
func Init(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	if initialized {
		return fmt.Errorf("logger already initialized; call Shutdown() before re-initializing")
	}

	logger, err := New(config)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	defaultLogger = logger
	initialized = true
	return nil
}

// Get 取得全域 logger；未初始化時回傳 NullLogger
func Get() Logger {
	mu.RLock()
	defer mu.RUnlock()

	if !initialized {
		return NullLogger{}
	}
	return defaultLogger
}

// With 建立帶 context 的子 logger
func With(args ...any) Logger {
	return Get().With(args...)
}

// Named 回傳標記 component 的子 logger
func Named(component string) Logger {
	return Get().With("component", component)
}

// Or returns l, or the global logger when l is nil
func Or(l Logger) Logger {
	if l == nil {
		return Get()
	}
	return l
}

// Sync 強制 flush
func Sync() error {
	return Get().Sync()
}

// Shutdown 關閉全域 logger，可重複呼叫
func Shutdown() error {
	mu.Lock()
	if !initialized {
		mu.Unlock()
		return nil
	}

	logger := defaultLogger
	defaultLogger = nil
	initialized = false
	mu.Unlock()

	return logger.Shutdown()
}

// NullLogger 空 logger
type NullLogger struct{}

func (NullLogger) Debug(msg string, args ...any) {}
func (NullLogger) Info(msg string, args ...any)  {}
func (NullLogger) Warn(msg string, args ...any)  {}
func (NullLogger) Error(msg string, args ...any) {}
func (n NullLogger) With(args ...any) Logger     { return n }
func (NullLogger) Sync() error                   { return nil }
func (NullLogger) Shutdown() error               { return nil }
