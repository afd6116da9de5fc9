package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationConfig controls log file rotation.
type RotationConfig struct {
	Filename   string // Log file path
	MaxSize    int    // Maximum size in megabytes
	MaxBackups int    // Maximum number of old log files to retain
	MaxAge     int    // Maximum number of days to retain old log files
	Compress   bool   // Compress old log files
}

// DefaultRotationConfig returns rotation settings for file.
func DefaultRotationConfig(file string) RotationConfig {
	return RotationConfig{
		Filename:   file,
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}
}

// ParseLevel maps a level name to a logrus level. quiet and silent keep
// only fatal messages.
func ParseLevel(level string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "verbose", "trace":
		return log.DebugLevel, nil
	case "", "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	case "quiet", "silent":
		return log.FatalLevel, nil
	}
	return log.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

// Setup configures the standard logrus logger. Logs go to stderr unless a
// file is given, in which case they are rotated through lumberjack. The
// returned closer releases the file.
func Setup(level string, file string) (io.Closer, error) {
	parsed, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(parsed)
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})

	if strings.TrimSpace(file) == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}
	rotation := DefaultRotationConfig(file)
	writer := &lumberjack.Logger{
		Filename:   rotation.Filename,
		MaxSize:    rotation.MaxSize,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAge,
		Compress:   rotation.Compress,
	}
	log.SetOutput(writer)
	return writer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Component returns an entry tagged with a component name.
func Component(name string) *log.Entry {
	return log.WithField("component", name)
}
