package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/presencectl/internal/config"
	"github.com/danmuck/presencectl/internal/logging"
	"github.com/danmuck/presencectl/internal/presence"
	"github.com/danmuck/presencectl/internal/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const configFileName = "config.toml"

// app carries state shared by every subcommand after the root pre-run.
type app struct {
	configPath string
	overrides  overrides

	cfg       config.Config
	logCloser io.Closer
}

type overrides struct {
	clientID  string
	endpoint  string
	transport string
	timeout   string
	logLevel  string
	logFormat string
	fallThru  bool
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "presencectl",
		Short:         "Publish a rich presence status to the local desktop client over IPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.Flags())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logCloser != nil {
				_ = a.logCloser.Close()
			}
		},
	}
	bindGlobalFlags(cmd.PersistentFlags(), a)

	cmd.AddCommand(
		newDiscoverCommand(),
		newWatchCommand(),
		newSetCommand(a),
		newClearCommand(a),
		newRunCommand(a),
		newConfigCommand(a),
	)
	return cmd
}

func bindGlobalFlags(fs *pflag.FlagSet, a *app) {
	fs.StringVarP(&a.configPath, "config", "c", "", fmt.Sprintf("config file (defaults to %s when present)", defaultConfigPath()))
	fs.StringVar(&a.overrides.clientID, "client-id", "", "application id (overrides client_id and $"+config.EnvClientID+")")
	fs.StringVarP(&a.overrides.endpoint, "endpoint", "e", "", "endpoint ordinal 0-9 or explicit socket/pipe path")
	fs.StringVar(&a.overrides.transport, "transport", "", "transport backend: "+joinBackends())
	fs.StringVar(&a.overrides.timeout, "connect-timeout", "", "bound on discovery, open and handshake (e.g. 5s, 0 to try once)")
	fs.BoolVar(&a.overrides.fallThru, "fall-through", false, "try every discovered endpoint instead of only the first")
	fs.StringVar(&a.overrides.logLevel, "log-level", "", "log level (trace|debug|info|warn|error)")
	fs.StringVar(&a.overrides.logFormat, "log-format", "", "log format (console|json)")
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", configFileName)
	}
	return filepath.Join(dir, "presencectl", configFileName)
}

// load resolves file, environment and flags in that order of precedence
// (lowest first) and configures logging.
func (a *app) load(fs *pflag.FlagSet) error {
	cfg := config.Default()
	path := a.configPath
	if path == "" {
		if p := defaultConfigPath(); fileExists(p) {
			path = p
		}
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	config.ApplyEnv(&cfg)
	if err := a.applyFlags(fs, &cfg); err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := logging.DefaultConfig(logging.ProfileRuntime)
	logCfg = cfg.Logging(logCfg)
	logging.ApplyEnv(&logCfg)
	a.logCloser = logging.Apply(logCfg)
	return nil
}

func (a *app) applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	o := a.overrides
	if fs.Changed("client-id") {
		cfg.ClientID = o.clientID
	}
	if fs.Changed("endpoint") {
		cfg.Endpoint = o.endpoint
	}
	if fs.Changed("transport") {
		cfg.Transport = o.transport
	}
	if fs.Changed("connect-timeout") {
		d, err := parseDurationFlag("connect-timeout", o.timeout)
		if err != nil {
			return err
		}
		cfg.ConnectTimeout = d
	}
	if fs.Changed("fall-through") {
		cfg.FallThrough = o.fallThru
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	return nil
}

// newClient validates the resolved config and builds a client on the
// configured backend.
func (a *app) newClient() (*presence.Client, error) {
	if err := config.Validate(a.cfg); err != nil {
		return nil, err
	}
	tr, err := transport.Select(a.cfg.Transport)
	if err != nil {
		return nil, err
	}
	sc, err := a.cfg.Session()
	if err != nil {
		return nil, err
	}
	return presence.New(tr, sc), nil
}

// connect dials once with retry on recoverable failures.
func (a *app) connect(ctx context.Context) (*presence.Client, error) {
	c, err := a.newClient()
	if err != nil {
		return nil, err
	}
	if err := presence.ConnectWithRetry(ctx, c, a.cfg.Retry); err != nil {
		return nil, err
	}
	return c, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

func joinBackends() string {
	return strings.Join(transport.Backends(), "|")
}

func parseDurationFlag(name, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

func describeSession(c *presence.Client) string {
	ep, ok := c.Endpoint()
	if !ok {
		return c.State().String()
	}
	if r := c.Ready(); r != nil && r.User != nil {
		return fmt.Sprintf("%s via %s as %s", c.State(), ep.Address, r.User.Username)
	}
	return fmt.Sprintf("%s via %s", c.State(), ep.Address)
}
