package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/presencectl/internal/activity"
	"github.com/danmuck/presencectl/internal/logging"
	"github.com/danmuck/presencectl/internal/protocol"
	"github.com/danmuck/presencectl/internal/protocol/session"
	"github.com/danmuck/presencectl/internal/transport/async"
	"github.com/danmuck/presencectl/internal/transport/blocking"
)

const (
	EnvClientID = "PRESENCECTL_CLIENT_ID"

	DefaultRefreshInterval = 15 * time.Second
	// MinRefreshInterval matches the desktop client's SET_ACTIVITY rate limit
	// of five updates per twenty seconds.
	MinRefreshInterval = 4 * time.Second
)

type Config struct {
	ClientID        string
	Endpoint        string
	Transport       string
	ConnectTimeout  time.Duration
	PollInterval    time.Duration
	FallThrough     bool
	MaxPayloadSize  uint32
	RefreshInterval time.Duration
	MetricsAddr     string
	Retry           session.RetryConfig
	Log             LogConfig
	Activity        ActivityConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

type ActivityConfig struct {
	State      string
	Details    string
	LargeImage string
	LargeText  string
	SmallImage string
	SmallText  string
	StartNow   bool
	Buttons    []activity.Button
}

func Default() Config {
	return Config{
		Transport:       blocking.Name,
		ConnectTimeout:  5 * time.Second,
		PollInterval:    session.DefaultPollInterval,
		MaxPayloadSize:  protocol.MaxPayloadSize,
		RefreshInterval: DefaultRefreshInterval,
		Retry:           session.DefaultRetryConfig(),
		Log: LogConfig{
			Level:      "info",
			Format:     logging.FormatConsole,
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// ApplyEnv overlays environment values that take precedence over the file.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvClientID)); v != "" {
		cfg.ClientID = v
	}
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return fmt.Errorf("config missing client_id")
	}
	if _, err := session.ParseTarget(cfg.Endpoint); err != nil {
		return fmt.Errorf("endpoint invalid: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case blocking.Name, async.Name:
	default:
		return fmt.Errorf("transport must be %s or %s, got %q", blocking.Name, async.Name, cfg.Transport)
	}
	if cfg.ConnectTimeout < 0 || cfg.PollInterval < 0 {
		return fmt.Errorf("connect_timeout and poll_interval must not be negative")
	}
	if cfg.MaxPayloadSize == 0 {
		return fmt.Errorf("max_payload_size must be positive")
	}
	if cfg.RefreshInterval < MinRefreshInterval {
		return fmt.Errorf("refresh_interval %s below minimum %s", cfg.RefreshInterval, MinRefreshInterval)
	}
	if err := validateRetry(cfg.Retry); err != nil {
		return fmt.Errorf("retry invalid: %w", err)
	}
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("log.level %q unknown", cfg.Log.Level)
	}
	if _, ok := logging.ParseFormat(cfg.Log.Format); !ok {
		return fmt.Errorf("log.format %q unknown", cfg.Log.Format)
	}
	if _, err := cfg.BuildActivity(); err != nil {
		return fmt.Errorf("activity invalid: %w", err)
	}
	return nil
}

func validateRetry(r session.RetryConfig) error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if r.InitialDelay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if r.MaxDelay > 0 && r.MaxDelay < r.InitialDelay {
		return fmt.Errorf("max_delay %s below initial_delay %s", r.MaxDelay, r.InitialDelay)
	}
	if r.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1")
	}
	return nil
}

// Session converts the connection settings. Discovery and nonce generation
// keep their defaults.
func (c Config) Session() (session.Config, error) {
	target, err := session.ParseTarget(c.Endpoint)
	if err != nil {
		return session.Config{}, err
	}
	out := session.DefaultConfig()
	out.ClientID = strings.TrimSpace(c.ClientID)
	out.Target = target
	out.ConnectTimeout = c.ConnectTimeout
	out.PollInterval = c.PollInterval
	out.FallThrough = c.FallThrough
	out.MaxPayloadSize = c.MaxPayloadSize
	return out.WithDefaults(), nil
}

// Logging overlays the [log] table onto base. Unknown values leave base as is.
func (c Config) Logging(base logging.Config) logging.Config {
	if lvl, ok := logging.ParseLevel(c.Log.Level); ok {
		base.Level = lvl
	}
	if f, ok := logging.ParseFormat(c.Log.Format); ok {
		base.Format = f
	}
	if c.Log.File != "" {
		base.File = c.Log.File
	}
	if c.Log.MaxSizeMB > 0 {
		base.MaxSizeMB = c.Log.MaxSizeMB
	}
	if c.Log.MaxBackups > 0 {
		base.MaxBackups = c.Log.MaxBackups
	}
	return base
}

// BuildActivity returns the configured status, or nil when the [activity]
// table sets nothing.
func (c Config) BuildActivity() (*activity.Activity, error) {
	a := c.Activity
	if a.State == "" && a.Details == "" && a.LargeImage == "" && a.SmallImage == "" && !a.StartNow && len(a.Buttons) == 0 {
		return nil, nil
	}
	b := activity.NewBuilder().State(a.State).Details(a.Details)
	if a.LargeImage != "" || a.LargeText != "" {
		b.LargeImage(a.LargeImage, a.LargeText)
	}
	if a.SmallImage != "" || a.SmallText != "" {
		b.SmallImage(a.SmallImage, a.SmallText)
	}
	if a.StartNow {
		b.StartNow()
	}
	for _, btn := range a.Buttons {
		b.Button(btn.Label, btn.URL)
	}
	return b.Build()
}
