// Package logger configures the process-wide structured logger.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"streamnzb/pkg/paths"
)

var Log = slog.Default()

var (
	logFile     *os.File
	logFileMu   sync.Mutex
	logLocation *time.Location
	locationMu  sync.RWMutex
)

// Init initializes the global logger at the given level (DEBUG, INFO, WARN, ERROR).
// Writes structured text to stdout and a daily rotated file under the data directory.
func Init(levelStr string) {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	loc := time.Local
	if tz := os.Getenv("TZ"); tz != "" {
		if loaded, err := time.LoadLocation(tz); err == nil {
			loc = loaded
		}
	}
	locationMu.Lock()
	logLocation = loc
	locationMu.Unlock()

	dataDir := paths.GetDataDir()
	dateStr := time.Now().In(loc).Format("2006-01-02")
	logFilePath := filepath.Join(dataDir, fmt.Sprintf("streamnzb-%s.log", dateStr))

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
	} else {
		logFileMu.Lock()
		if logFile != nil {
			logFile.Close()
		}
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", logFilePath, err)
			logFile = nil
		} else {
			logFile = f
		}
		logFileMu.Unlock()
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().In(loc).Format("2006-01-02T15:04:05.000-07:00"))
			}
			return a
		},
	}

	stdoutHandler := slog.NewTextHandler(os.Stdout, opts)
	var fileHandler slog.Handler
	logFileMu.Lock()
	if logFile != nil {
		fileHandler = slog.NewTextHandler(logFile, opts)
	}
	logFileMu.Unlock()

	Log = slog.New(&teeHandler{primary: stdoutHandler, secondary: fileHandler})
	slog.SetDefault(Log)
}

// teeHandler fans records out to stdout and the rotated file handler.
type teeHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.primary.Handle(ctx, r.Clone())
	if h.secondary != nil {
		_ = h.secondary.Handle(ctx, r.Clone())
	}
	return err
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	secondary := h.secondary
	if secondary != nil {
		secondary = secondary.WithAttrs(attrs)
	}
	return &teeHandler{primary: h.primary.WithAttrs(attrs), secondary: secondary}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	secondary := h.secondary
	if secondary != nil {
		secondary = secondary.WithGroup(name)
	}
	return &teeHandler{primary: h.primary.WithGroup(name), secondary: secondary}
}

// Close closes the log file, if one is open.
func Close() {
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func Debug(msg string, args ...any) { Log.Debug(msg, args...) }
func Info(msg string, args ...any)  { Log.Info(msg, args...) }
func Warn(msg string, args ...any)  { Log.Warn(msg, args...) }
func Error(msg string, args ...any) { Log.Error(msg, args...) }

func Fatal(msg string, args ...any) {
	Log.Error(msg, args...)
	os.Exit(1)
}
