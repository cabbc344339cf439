package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/presencectl/internal/activity"
)

type fileConfig struct {
	ClientID        string       `toml:"client_id" comment:"Application id from the developer portal"`
	Endpoint        string       `toml:"endpoint" comment:"Empty for discovery, an ordinal 0-9, or an explicit socket/pipe path"`
	Transport       string       `toml:"transport" comment:"blocking or async"`
	ConnectTimeout  string       `toml:"connect_timeout" comment:"Bound on discovery, open and handshake; 0 tries once"`
	PollInterval    string       `toml:"poll_interval"`
	FallThrough     bool         `toml:"fall_through" comment:"Try every discovered endpoint instead of only the first"`
	MaxPayloadSize  uint32       `toml:"max_payload_size"`
	RefreshInterval string       `toml:"refresh_interval" comment:"How often run re-publishes the activity"`
	MetricsAddr     string       `toml:"metrics_addr" comment:"Serve /metrics on this address when set"`
	Retry           fileRetry    `toml:"retry"`
	Log             fileLog      `toml:"log"`
	Activity        fileActivity `toml:"activity"`
}

type fileRetry struct {
	MaxAttempts  int     `toml:"max_attempts"`
	InitialDelay string  `toml:"initial_delay"`
	MaxDelay     string  `toml:"max_delay"`
	Multiplier   float64 `toml:"multiplier"`
}

type fileLog struct {
	Level      string `toml:"level"`
	Format     string `toml:"format" comment:"console or json"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type fileActivity struct {
	State      string            `toml:"state"`
	Details    string            `toml:"details"`
	LargeImage string            `toml:"large_image"`
	LargeText  string            `toml:"large_text"`
	SmallImage string            `toml:"small_image"`
	SmallText  string            `toml:"small_text"`
	StartNow   bool              `toml:"start_now"`
	Buttons    []activity.Button `toml:"buttons"`
}

// Load decodes path over Default. Keys absent from the file keep their
// defaults. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return Config{}, fmt.Errorf("config parse failed (%s): unknown key %s", path, undec[0])
	}

	if meta.IsDefined("client_id") {
		cfg.ClientID = strings.TrimSpace(raw.ClientID)
	}
	if meta.IsDefined("endpoint") {
		cfg.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if err := durationKey(meta, raw.ConnectTimeout, &cfg.ConnectTimeout, "connect_timeout"); err != nil {
		return Config{}, err
	}
	if err := durationKey(meta, raw.PollInterval, &cfg.PollInterval, "poll_interval"); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("fall_through") {
		cfg.FallThrough = raw.FallThrough
	}
	if meta.IsDefined("max_payload_size") {
		cfg.MaxPayloadSize = raw.MaxPayloadSize
	}
	if err := durationKey(meta, raw.RefreshInterval, &cfg.RefreshInterval, "refresh_interval"); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if meta.IsDefined("retry", "max_attempts") {
		cfg.Retry.MaxAttempts = raw.Retry.MaxAttempts
	}
	if err := durationKey(meta, raw.Retry.InitialDelay, &cfg.Retry.InitialDelay, "retry", "initial_delay"); err != nil {
		return Config{}, err
	}
	if err := durationKey(meta, raw.Retry.MaxDelay, &cfg.Retry.MaxDelay, "retry", "max_delay"); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("retry", "multiplier") {
		cfg.Retry.Multiplier = raw.Retry.Multiplier
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = raw.Log.Level
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = raw.Log.Format
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "max_size_mb") {
		cfg.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		cfg.Log.MaxBackups = raw.Log.MaxBackups
	}

	if meta.IsDefined("activity") {
		cfg.Activity = ActivityConfig{
			State:      raw.Activity.State,
			Details:    raw.Activity.Details,
			LargeImage: raw.Activity.LargeImage,
			LargeText:  raw.Activity.LargeText,
			SmallImage: raw.Activity.SmallImage,
			SmallText:  raw.Activity.SmallText,
			StartNow:   raw.Activity.StartNow,
			Buttons:    raw.Activity.Buttons,
		}
	}
	return cfg, nil
}

func durationKey(meta toml.MetaData, raw string, dst *time.Duration, key ...string) error {
	if !meta.IsDefined(key...) {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", strings.Join(key, "."), err)
	}
	*dst = d
	return nil
}
