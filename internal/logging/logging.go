// Package logging builds the zerolog logger used by every command.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

// EnvPrefix prefixes environment overrides, e.g. SPINEPREP_LOG_LEVEL.
const EnvPrefix = "SPINEPREP_"

// Config holds logger configuration options
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error or off.
	Level string `yaml:"level" toml:"level"`

	// Format is json, console or auto (console on a terminal).
	Format string `yaml:"format" toml:"format"`

	// File, when set, also receives JSON logs with size-based rotation.
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`

	NoColor bool `yaml:"no_color" toml:"no_color"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "auto",
		MaxSizeMB:  50,
		MaxAgeDays: 30,
		MaxBackups: 3,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
}

// New creates a logger writing to out. The returned closer releases the log
// file, if any, and is never nil.
func New(cfg Config, out io.Writer) (zerolog.Logger, io.Closer) {
	level := ParseLevel(cfg.Level)

	var closer io.Closer = nopCloser{}
	w := consoleOrJSON(cfg, out)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB, // megabytes
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
		}
		w = zerolog.MultiLevelWriter(w, lj)
		closer = lj
	}

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger, closer
}

func consoleOrJSON(cfg Config, out io.Writer) io.Writer {
	format := strings.ToLower(cfg.Format)
	if format == "" || format == "auto" {
		format = "json"
		if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = "console"
		}
	}
	switch format {
	case "console", "pretty", "text":
		return zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
			NoColor:    cfg.NoColor,
		}
	default:
		return out
	}
}

// ParseLevel parses a log level name, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "warning":
		return zerolog.WarnLevel
	case "off", "none", "disabled":
		return zerolog.Disabled
	}
	if l, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil && level != "" {
		return l
	}
	return zerolog.InfoLevel
}

// Verbosity adjusts a level name for -v and -q flags: each verbose step
// lowers the threshold, quiet raises it to errors only.
func Verbosity(level string, verbose int, quiet bool) string {
	if quiet {
		return zerolog.ErrorLevel.String()
	}
	l := ParseLevel(level)
	for i := 0; i < verbose && l > zerolog.TraceLevel; i++ {
		l--
	}
	return l.String()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
