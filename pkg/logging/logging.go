// Package logging builds the zerolog logger shared by the engine and the
// CLI. Packages under pkg/ never log globally; they receive a logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error, disabled
	Pretty bool   `yaml:"pretty"` // human readable console output instead of JSON
	File   string `yaml:"file"`   // also append JSON lines to this file
}

// Logger is a zerolog.Logger that owns its log file, if any.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New builds a logger writing to out. An empty level means info.
func New(cfg Config, out io.Writer) (*Logger, error) {
	lvl := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("logging: level %q: %w", cfg.Level, err)
		}
		lvl = l
	}

	w := out
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file: %w", err)
		}
		file = f
		w = zerolog.MultiLevelWriter(w, f)
	}

	return &Logger{
		Logger: zerolog.New(w).Level(lvl).With().Timestamp().Logger(),
		file:   file,
	}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// Zerolog returns a pointer to the embedded logger for option structs.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.Logger
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
