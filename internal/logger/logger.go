package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logMaxSize    = 10 // MB
	logMaxBackups = 5
	logMaxAge     = 28 // days
)

// Init configures the global zerolog logger. With a log file the output is
// rotated by lumberjack; in DEV a console writer is added.
func Init(logFile, level string, dev bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writers []io.Writer
	if logFile != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAge,
			Compress:   false,
		})
	}
	if dev || logFile == "" {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Logger().
		Level(ParseLevel(level))
	log.Logger = l
	return l
}

// ParseLevel falls back to info for unknown levels
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
