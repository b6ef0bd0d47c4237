package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SlogLogger slog 實作；訊息與屬性在 handler 層遮罩
type SlogLogger struct {
	logger  *slog.Logger
	closers []io.Closer // 只有根 logger 擁有
}

// NewSlogLogger 建立新的 slog logger
func NewSlogLogger(config Config) (*SlogLogger, error) {
	var writers []io.Writer
	var closers []io.Closer

	if !config.Quiet {
		if config.Console != nil {
			writers = append(writers, config.Console)
		} else {
			writers = append(writers, os.Stderr)
		}
	}

	if config.File.Path != "" {
		fileWriter, err := createFileWriter(config.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create file writer: %w", err)
		}
		writers = append(writers, fileWriter)
		closers = append(closers, fileWriter)
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = io.MultiWriter(writers...)
	}

	sanitizer := NewSanitizer()
	opts := &slog.HandlerOptions{
		Level:       config.Level.Slog(),
		ReplaceAttr: sanitizer.ReplaceAttr,
	}

	var handler slog.Handler
	if config.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	if len(config.Attrs) > 0 {
		logger = logger.With(config.Attrs...)
	}
	return &SlogLogger{
		logger:  logger,
		closers: closers,
	}, nil
}

// createFileWriter 建立檔案 writer（使用 lumberjack 支援 rotation）
func createFileWriter(config FileConfig) (*lumberjack.Logger, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSizeMB,
		MaxAge:     config.MaxAgeDays,
		MaxBackups: config.MaxBackups,
		Compress:   config.Compress,
	}, nil
}

func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// With 建立子 logger；子 logger 不擁有 writers，避免重複關閉
func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{logger: l.logger.With(args...)}
}

// Sync lumberjack 每次寫入即落地，無需額外 flush
func (l *SlogLogger) Sync() error {
	return nil
}

// Shutdown 關閉所有擁有的 writers
func (l *SlogLogger) Shutdown() error {
	var lastErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	l.closers = nil
	return lastErr
}
