package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/danmuck/presencectl/internal/discovery"
	"github.com/danmuck/presencectl/internal/transport"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newDiscoverCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List IPC endpoints the desktop client is listening on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := discovery.New()
			if all {
				present := make(map[string]bool)
				for _, ep := range l.Discover() {
					present[ep.Address] = true
				}
				return printEndpoints(cmd.OutOrStdout(), l.Candidates(), present)
			}
			found := l.Discover()
			if len(found) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no endpoint found; is the desktop client running?")
				return nil
			}
			return printEndpoints(cmd.OutOrStdout(), found, nil)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every probed candidate, not only the live ones")
	return cmd
}

func newWatchCommand() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Report endpoints as the desktop client starts and stops",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			out := cmd.OutOrStdout()
			return discovery.Watch(ctx, discovery.New(), interval, func(eps []transport.Endpoint) {
				fmt.Fprintf(out, "%s  %d endpoint(s)\n", time.Now().Format(time.TimeOnly), len(eps))
				_ = printEndpoints(out, eps, nil)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", discovery.DefaultWatchInterval, "rescan period between filesystem events")
	return cmd
}

// printEndpoints writes one row per endpoint. A nil present map marks every
// row live.
func printEndpoints(w io.Writer, eps []transport.Endpoint, present map[string]bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDINAL\tFAMILY\tADDRESS\tSTATUS\tSINCE")
	for _, ep := range eps {
		status := "live"
		if present != nil && !present[ep.Address] {
			status = "absent"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", ep.Ordinal, ep.Family, ep.Address, status, since(ep))
	}
	return tw.Flush()
}

func since(ep transport.Endpoint) string {
	if ep.Family != transport.DomainSocket {
		return "-"
	}
	info, err := os.Stat(ep.Address)
	if err != nil {
		return "-"
	}
	return humanize.Time(info.ModTime())
}
