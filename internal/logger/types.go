package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger 統一日誌介面，engine 與 CLI 共用
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	Sync() error     // 強制 flush
	Shutdown() error // 關閉擁有的 writers
}

// Level 日誌級別，數值與 slog 對齊
type Level int

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Slog returns the matching slog level
func (l Level) Slog() slog.Level {
	return slog.Level(l)
}

// ParseLevel parses a level name case-insensitively; unknown names fall back to info
func ParseLevel(s string) Level {
	level, _ := LookupLevel(s)
	return level
}

// LookupLevel is ParseLevel that reports unknown names. Empty means info.
func LookupLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelInfo, nil
	}
	if level, ok := levelNames[s]; ok {
		return level, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Format 日誌格式
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// ParseFormat parses a format name; anything but "json" is text
func ParseFormat(s string) Format {
	format, _ := LookupFormat(s)
	return format
}

// LookupFormat is ParseFormat that reports unknown names
func LookupFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// Config 日誌配置
type Config struct {
	Level  Level
	Format Format

	// Console 為 nil 時寫入 stderr；設定 Quiet 則完全不寫 console
	Console io.Writer
	Quiet   bool

	// Attrs 附加在每一筆紀錄上，例如 watcher 的 pid
	Attrs []any

	File FileConfig
}

// FileConfig 檔案日誌配置（lumberjack rotation）
type FileConfig struct {
	Path       string // 空字串表示不寫檔
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}
