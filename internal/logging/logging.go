// Package logging provides structured logging for taskrank on top of zerolog,
// with optional file output rotated by lumberjack.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// Config holds logging configuration.
type Config struct {
	Level Level

	// JSON selects JSON console output; otherwise a human console writer is used.
	JSON bool

	// FilePath enables rotated file output when set.
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool

	// Console keeps stderr output when FilePath is set.
	Console bool

	// Output overrides stderr; used by tests.
	Output io.Writer
}

func DefaultConfig() *Config {
	return &Config{
		Level:      InfoLevel,
		JSON:       false,
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     7,
		Compress:   true,
	}
}

// Logger wraps zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

var (
	globalLogger *Logger
	loggerMu     sync.RWMutex
)

// New builds a logger without touching the global one.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	console := cfg.Output
	if console == nil {
		console = os.Stderr
	}

	var writers []io.Writer
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	if cfg.Console || cfg.FilePath == "" {
		if cfg.JSON {
			writers = append(writers, console)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339})
		}
	}

	var out io.Writer
	if len(writers) == 1 {
		out = writers[0]
	} else {
		out = zerolog.MultiLevelWriter(writers...)
	}
	return &Logger{zl: zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()}, nil
}

// Init replaces the global logger.
func Init(cfg *Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	loggerMu.Lock()
	globalLogger = l
	loggerMu.Unlock()
	return nil
}

// Get returns the global logger, creating a default console logger on first use.
func Get() *Logger {
	loggerMu.RLock()
	l := globalLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if globalLogger == nil {
		globalLogger, _ = New(nil)
	}
	return globalLogger
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{zl: l.zl.With().Fields(fields).Logger()}
}

func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

func (l *Logger) WithOwner(ownerID string) *Logger {
	return &Logger{zl: l.zl.With().Str("owner_id", ownerID).Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }

func (l *Logger) Info(msg string) { l.zl.Info().Msg(msg) }

func (l *Logger) Infof(format string, args ...interface{}) { l.zl.Info().Msgf(format, args...) }

func (l *Logger) Warn(msg string) { l.zl.Warn().Msg(msg) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.zl.Warn().Msgf(format, args...) }

func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

// Event returns a zerolog event for callers that need typed fields.
func (l *Logger) Event(level Level) *zerolog.Event {
	return l.zl.WithLevel(level)
}

func ParseLevel(level string) (Level, error) {
	return zerolog.ParseLevel(level)
}

// FileConfig mirrors the logging section of the taskrank config file.
type FileConfig struct {
	Level      string `yaml:"level"`
	FilePath   string `yaml:"file"`
	JSON       bool   `yaml:"json"`
	Console    bool   `yaml:"console"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   *bool  `yaml:"compress,omitempty"`
}

// FromFileConfig converts the config-file shape into a Config, keeping
// defaults for zero values.
func FromFileConfig(fc FileConfig) (*Config, error) {
	cfg := DefaultConfig()
	if fc.Level != "" {
		level, err := ParseLevel(fc.Level)
		if err != nil {
			return nil, err
		}
		cfg.Level = level
	}
	cfg.FilePath = fc.FilePath
	cfg.JSON = fc.JSON
	cfg.Console = fc.Console
	if fc.MaxSize > 0 {
		cfg.MaxSize = fc.MaxSize
	}
	if fc.MaxBackups > 0 {
		cfg.MaxBackups = fc.MaxBackups
	}
	if fc.MaxAge > 0 {
		cfg.MaxAge = fc.MaxAge
	}
	if fc.Compress != nil {
		cfg.Compress = *fc.Compress
	}
	return cfg, nil
}
