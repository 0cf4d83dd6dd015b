package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

var logFile *lumberjack.Logger

// ParseLevel maps a config level name to a slog level.
// Valid names are "none", "error", "warn", "info" and "debug"; "none" reports
// disabled as true.
func ParseLevel(name string) (level slog.Level, disabled bool, err error) {
	switch name {
	case "none":
		return 0, true, nil
	case "error":
		return slog.LevelError, false, nil
	case "warn":
		return slog.LevelWarn, false, nil
	case "info", "":
		return slog.LevelInfo, false, nil
	case "debug":
		return slog.LevelDebug, false, nil
	}
	return 0, false, fmt.Errorf("unexpected log level %q", name)
}

// Setup initializes the default slog logger. Output goes to stdout and, when
// logPath is set, to a rotating log file as well.
func Setup(levelName, logPath string) error {
	level, disabled, err := ParseLevel(levelName)
	if err != nil {
		return err
	}
	if disabled {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil
	}

	writers := []io.Writer{os.Stdout}
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		logFile = &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
		}
		writers = append(writers, logFile)
	}

	multiWriter := io.MultiWriter(writers...)
	handler := slog.NewTextHandler(multiWriter, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	slog.Debug("logging initialized", "path", logPath, "level", level)
	return nil
}

// Close closes the log file
func Close() {
	if logFile == nil {
		return
	}
	if err := logFile.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
	}
	logFile = nil
}
