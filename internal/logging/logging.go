package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.Mutex
	logFile *os.File
	logger  = zap.NewNop()
)

// Options controls where and how much is logged.
type Options struct {
	// Path is the log file. Empty disables the file sink.
	Path string
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Console adds a human-readable sink on stderr.
	Console bool
}

// Init builds the process logger from opts, replacing any previous one.
func Init(opts Options) (*zap.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	closeFileLocked()

	level := zapcore.InfoLevel
	if lvl := strings.TrimSpace(opts.Level); lvl != "" {
		if err := level.UnmarshalText([]byte(lvl)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", lvl, err)
		}
	}
	enabler := zap.NewAtomicLevelAt(level)

	var cores []zapcore.Core
	if opts.Path != "" {
		if dir := filepath.Dir(opts.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		logFile = file
		encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(file), enabler))
	}
	if opts.Console {
		encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), enabler))
	}

	if len(cores) == 0 {
		logger = zap.NewNop()
		return logger, nil
	}
	logger = zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, nil
}

// L returns the process logger. It is a no-op logger until Init succeeds.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Close flushes the logger and releases the log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	_ = logger.Sync()
	logger = zap.NewNop()
	return closeFileLocked()
}

func closeFileLocked() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// LogEvent writes a formatted informational message.
func LogEvent(format string, args ...any) {
	L().Info(fmt.Sprintf(format, args...))
}

// LogRequest records one direction of an exchange with the search service.
func LogRequest(direction, endpoint, query string, payload any) {
	L().Debug(buildRequestMessage(direction),
		zap.String("endpoint", valueOrUnknown(endpoint)),
		zap.String("query", query),
		zap.String("payload", formatPayload(payload)),
	)
}

func buildRequestMessage(direction string) string {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir == "" {
		dir = "EXCHANGE"
	}
	return fmt.Sprintf("[%s]", dir)
}

func valueOrUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
