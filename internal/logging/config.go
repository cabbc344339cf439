package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLogLevel     = "PRESENCECTL_LOG_LEVEL"
	EnvLogFormat    = "PRESENCECTL_LOG_FORMAT"
	EnvLogTimestamp = "PRESENCECTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "PRESENCECTL_LOG_NOCOLOR"
	EnvLogFile      = "PRESENCECTL_LOG_FILE"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config describes one logger setup. File, when set, receives JSON lines
// through a rotating writer in addition to the primary output.
type Config struct {
	Level      zerolog.Level
	Format     string
	Timestamp  bool
	NoColor    bool
	File       string
	MaxSizeMB  int
	MaxBackups int
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure installs the profile defaults plus env overrides once per process.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := DefaultConfig(profile)
		ApplyEnv(&cfg)
		Apply(cfg)
	})
}

func DefaultConfig(profile Profile) Config {
	cfg := Config{
		Format:     FormatConsole,
		MaxSizeMB:  10,
		MaxBackups: 3,
	}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

// ApplyEnv overlays PRESENCECTL_LOG_* values that parse cleanly.
func ApplyEnv(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if f, ok := ParseFormat(os.Getenv(EnvLogFormat)); ok {
		cfg.Format = f
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.File = v
	}
}

// Apply replaces the global logger. The returned closer releases the log file, if any.
func Apply(cfg Config) io.Closer {
	zerolog.SetGlobalLevel(cfg.Level)

	var primary io.Writer
	switch cfg.Format {
	case FormatJSON:
		primary = os.Stdout
	default:
		cw := zerolog.ConsoleWriter{
			Out:        colorable.NewColorableStdout(),
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor || !isTerminal(os.Stdout),
		}
		if !cfg.Timestamp {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		primary = cw
	}

	var closer io.Closer = nopCloser{}
	out := primary
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		out = zerolog.MultiLevelWriter(primary, rotating)
		closer = rotating
	}

	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	log.Logger = ctx.Logger()
	return closer
}

// For returns a child of the current global logger tagged with component.
func For(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// ParseLevel accepts the level names used in config files and env vars.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func ParseFormat(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case FormatConsole, "text", "pretty":
		return FormatConsole, true
	case FormatJSON:
		return FormatJSON, true
	default:
		return "", false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
