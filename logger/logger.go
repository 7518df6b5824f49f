/*
The logger package wraps zerolog so that every component in the connection
layer can log through the same interface. Loggers are cheap to derive; each
subsystem gets its own child logger tagged with the component name.
*/

package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// The maximum size of a log file before it gets rotated out, in megabytes
const maxLogFileSize = 100

type Config struct {
	// Writers that receive human-readable console output
	ConsoleWriters []io.Writer

	// If set, logs are also written to this file with rotation
	FilePath string

	// Defaults to debug if unset
	LogLevel string
}

type Logger struct {
	logger zerolog.Logger
}

func New(config *Config) (*Logger, error) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level := zerolog.DebugLevel
	if config.LogLevel != "" {
		parsed, err := zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("unrecognized log level %s: %w", config.LogLevel, err)
		}
		level = parsed
	}

	writers := []io.Writer{}

	if config.FilePath != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    maxLogFileSize,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		}
		writers = append(writers, fileWriter)
	}

	for _, consoleWriter := range config.ConsoleWriters {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        consoleWriter,
			TimeFormat: time.RFC3339,
		})
	}

	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{logger: logger}, nil
}

// GetComponentLogger returns a child logger tagged with the given component
// name. All output of the child carries the component field.
func (l *Logger) GetComponentLogger(component string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("component", component).Logger(),
	}
}

func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *Logger) Infof(format string, a ...any) {
	l.logger.Info().Msgf(format, a...)
}

func (l *Logger) Debugf(format string, a ...any) {
	l.logger.Debug().Msgf(format, a...)
}

func (l *Logger) Tracef(format string, a ...any) {
	l.logger.Trace().Msgf(format, a...)
}

func (l *Logger) Error(err error) {
	l.logger.Error().Msg(err.Error())
}

func (l *Logger) Errorf(format string, a ...any) {
	l.logger.Error().Msgf(format, a...)
}
