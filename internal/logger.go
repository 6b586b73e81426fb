package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

var (
	logLevel = new(slog.LevelVar)

	handlerMux sync.Mutex
	handler    slog.Handler
)

// SetLogLevel changes the level of every logger, including the ones
// already created.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// ParseLogLevel parses debug, info, warn or error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// SetLogOutput redirects every logger created afterwards to w without colors.
func SetLogOutput(w io.Writer) {
	handlerMux.Lock()
	defer handlerMux.Unlock()

	handler = tint.NewHandler(w, &tint.Options{
		Level:   logLevel,
		NoColor: true,
	})
}

func getHandler() slog.Handler {
	handlerMux.Lock()
	defer handlerMux.Unlock()

	if handler != nil {
		return handler
	}

	if runtime.GOOS == "windows" {
		w := colorable.NewColorableStdout()
		handler = tint.NewHandler(w, &tint.Options{Level: logLevel})
	} else {
		w := os.Stderr
		handler = tint.NewHandler(w, &tint.Options{
			Level:   logLevel,
			NoColor: !isatty.IsTerminal(w.Fd()),
		})
	}

	return handler
}

type Logger struct {
	*slog.Logger

	kind string
	name string
}

func NewLogger(kind, name string) *Logger {
	return &Logger{
		Logger: slog.New(getHandler()),

		kind: kind,
		name: name,
	}
}

func (l *Logger) getInfo() slog.Attr {
	return slog.Group("info", slog.String("kind", l.kind), slog.String("name", l.name))
}

func (l *Logger) getArgs(args ...any) []any {
	return append([]any{l.getInfo()}, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.Logger.Debug(msg, l.getArgs(args...)...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.Logger.Info(msg, l.getArgs(args...)...)
}

func (l *Logger) Error(msg string, err error, args ...any) {
	tmpArgs := append([]any{tint.Err(err)}, args...)
	l.Logger.Error(msg, l.getArgs(tmpArgs...)...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, l.getArgs(args...)...)
}
