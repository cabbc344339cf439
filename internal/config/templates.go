package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/danmuck/presencectl/internal/activity"
	"github.com/pelletier/go-toml/v2"
)

// Template renders cfg in the on-disk format Load reads.
func Template(cfg Config) (string, error) {
	raw := fileConfig{
		ClientID:        cfg.ClientID,
		Endpoint:        cfg.Endpoint,
		Transport:       cfg.Transport,
		ConnectTimeout:  cfg.ConnectTimeout.String(),
		PollInterval:    cfg.PollInterval.String(),
		FallThrough:     cfg.FallThrough,
		MaxPayloadSize:  cfg.MaxPayloadSize,
		RefreshInterval: cfg.RefreshInterval.String(),
		MetricsAddr:     cfg.MetricsAddr,
		Retry: fileRetry{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay.String(),
			MaxDelay:     cfg.Retry.MaxDelay.String(),
			Multiplier:   cfg.Retry.Multiplier,
		},
		Log: fileLog{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		},
		Activity: fileActivity{
			State:      cfg.Activity.State,
			Details:    cfg.Activity.Details,
			LargeImage: cfg.Activity.LargeImage,
			LargeText:  cfg.Activity.LargeText,
			SmallImage: cfg.Activity.SmallImage,
			SmallText:  cfg.Activity.SmallText,
			StartNow:   cfg.Activity.StartNow,
			Buttons:    append([]activity.Button{}, cfg.Activity.Buttons...),
		},
	}
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(raw); err != nil {
		return "", fmt.Errorf("render config: %w", err)
	}
	return buf.String(), nil
}

// StarterConfig is the template written by config init.
func StarterConfig() Config {
	cfg := Default()
	cfg.Activity = ActivityConfig{
		State:    "Idle",
		Details:  "presencectl",
		StartNow: true,
	}
	return cfg
}

func WriteTemplate(path string, cfg Config, overwrite bool) error {
	template, err := Template(cfg)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
