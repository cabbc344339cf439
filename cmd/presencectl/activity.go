package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/presencectl/internal/activity"
	"github.com/danmuck/presencectl/internal/config"
	"github.com/danmuck/presencectl/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type activityFlags struct {
	state      string
	details    string
	largeImage string
	largeText  string
	smallImage string
	smallText  string
	startNow   bool
	buttons    []string
}

func (f *activityFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.state, "state", "", "status line")
	fs.StringVar(&f.details, "details", "", "detail line")
	fs.StringVar(&f.largeImage, "large-image", "", "large image asset key or url")
	fs.StringVar(&f.largeText, "large-text", "", "large image hover text")
	fs.StringVar(&f.smallImage, "small-image", "", "small image asset key or url")
	fs.StringVar(&f.smallText, "small-text", "", "small image hover text")
	fs.BoolVar(&f.startNow, "start-now", false, "show elapsed time from now")
	fs.StringArrayVar(&f.buttons, "button", nil, "button as 'Label=https://url' (repeatable, at most 2)")
}

// apply overlays changed flags onto the configured activity.
func (f *activityFlags) apply(fs *pflag.FlagSet, dst *config.ActivityConfig) error {
	set := func(name string, to *string, v string) {
		if fs.Changed(name) {
			*to = v
		}
	}
	set("state", &dst.State, f.state)
	set("details", &dst.Details, f.details)
	set("large-image", &dst.LargeImage, f.largeImage)
	set("large-text", &dst.LargeText, f.largeText)
	set("small-image", &dst.SmallImage, f.smallImage)
	set("small-text", &dst.SmallText, f.smallText)
	if fs.Changed("start-now") {
		dst.StartNow = f.startNow
	}
	if fs.Changed("button") {
		buttons, err := parseButtons(f.buttons)
		if err != nil {
			return err
		}
		dst.Buttons = buttons
	}
	return nil
}

func parseButtons(raw []string) ([]activity.Button, error) {
	out := make([]activity.Button, 0, len(raw))
	for _, r := range raw {
		label, url, ok := strings.Cut(r, "=")
		if !ok || strings.TrimSpace(label) == "" {
			return nil, fmt.Errorf("--button %q: want Label=URL", r)
		}
		out = append(out, activity.Button{Label: strings.TrimSpace(label), URL: strings.TrimSpace(url)})
	}
	return out, nil
}

func newSetCommand(a *app) *cobra.Command {
	var flags activityFlags
	var hold bool
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Publish an activity and hold it until interrupted",
		Long: `Publish an activity built from the [activity] table and flags.

The desktop client drops a status when its IPC connection closes, so set keeps
the connection open until interrupted unless --hold=false is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd.Flags(), &a.cfg.Activity); err != nil {
				return err
			}
			act, err := a.cfg.BuildActivity()
			if err != nil {
				return err
			}
			if act == nil {
				return fmt.Errorf("nothing to publish: set --state, --details or the [activity] table")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			c, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Publish(ctx, act); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published (%s)\n", describeSession(c))
			if !hold {
				return nil
			}
			<-ctx.Done()
			logger := logging.For("cli")
			logger.Info().Msg("interrupted; closing connection")
			return nil
		},
	}
	flags.bind(cmd.Flags())
	cmd.Flags().BoolVar(&hold, "hold", true, "keep the connection open until interrupted")
	return cmd
}

func newClearCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the activity published for this process id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared (%s)\n", describeSession(c))
			return nil
		},
	}
}
