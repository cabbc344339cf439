package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/presencectl/internal/activity"
	"github.com/danmuck/presencectl/internal/logging"
	"github.com/danmuck/presencectl/internal/observability"
	"github.com/danmuck/presencectl/internal/presence"
	"github.com/danmuck/presencectl/internal/protocol"
	"github.com/danmuck/presencectl/internal/protocol/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRunCommand(a *app) *cobra.Command {
	var flags activityFlags
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Keep an activity published, reconnecting when the desktop client restarts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd.Flags(), &a.cfg.Activity); err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				a.cfg.MetricsAddr = metricsAddr
			}
			act, err := a.cfg.BuildActivity()
			if err != nil {
				return err
			}
			c, err := a.newClient()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := &runner{
				client:   c,
				activity: act,
				retry:    a.cfg.Retry,
				interval: a.cfg.RefreshInterval,
				logger:   logging.For("run"),
			}
			if a.cfg.MetricsAddr != "" {
				srv := r.serveMetrics(a.cfg.MetricsAddr)
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(sctx)
				}()
			}
			return r.loop(ctx)
		},
	}
	flags.bind(cmd.Flags())
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /status on this address")
	return cmd
}

// runner re-publishes one activity on a ticker. mu serializes client use;
// the status handler reads only the snapshot, so it never waits on a
// reconnect or a slow publish.
type runner struct {
	mu       sync.Mutex
	client   *presence.Client
	activity *activity.Activity
	retry    session.RetryConfig
	interval time.Duration
	logger   zerolog.Logger
	snapshot atomic.Pointer[status]
}

func (r *runner) loop(ctx context.Context) error {
	defer func() {
		r.mu.Lock()
		_ = r.client.Close()
		r.record()
		r.mu.Unlock()
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := r.refresh(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// refresh reconnects when needed and publishes. Only failures a reconnect
// cannot fix end the loop. A publish is bounded by the refresh interval.
func (r *runner) refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.record()

	if r.client.State() != session.Ready {
		r.snapshot.Store(&status{State: session.Connecting.String()})
		err := presence.ConnectWithRetry(ctx, r.client, r.retry)
		switch {
		case err == nil:
			r.logger.Info().Str("session", describeSession(r.client)).Msg("connected")
		case ctx.Err() != nil:
			return nil
		case protocol.IsRecoverable(err):
			r.logger.Warn().Err(err).Dur("next", r.interval).Msg("desktop client unreachable")
			return nil
		default:
			return fmt.Errorf("connect: %w", err)
		}
	}

	pctx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()
	var err error
	if r.activity == nil {
		err = r.client.Clear(pctx)
	} else {
		err = r.client.Publish(pctx, r.activity)
	}
	switch {
	case err == nil:
		r.logger.Debug().Msg("activity refreshed")
		return nil
	case ctx.Err() != nil:
		return nil
	case protocol.IsRecoverable(err):
		r.logger.Warn().Err(err).Msg("publish failed; reconnecting on next tick")
		return nil
	case errors.Is(err, protocol.ErrDiscordError):
		code, msg, _ := protocol.AsDiscordError(err)
		r.logger.Error().Int("code", code).Str("message", msg).Msg("activity rejected")
		return nil
	default:
		return err
	}
}

type status struct {
	State    string `json:"state"`
	Endpoint string `json:"endpoint,omitempty"`
	User     string `json:"user,omitempty"`
}

// record snapshots the client for the status handler. Callers hold mu.
func (r *runner) record() {
	st := &status{State: r.client.State().String()}
	if ep, ok := r.client.Endpoint(); ok {
		st.Endpoint = ep.Address
	}
	if ready := r.client.Ready(); ready != nil && ready.User != nil {
		st.User = ready.User.Username
	}
	r.snapshot.Store(st)
}

func (r *runner) status() status {
	if st := r.snapshot.Load(); st != nil {
		return *st
	}
	return status{State: session.Disconnected.String()}
}

func (r *runner) handler() http.Handler {
	observability.RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		st := r.status()
		w.Header().Set("Content-Type", "application/json")
		if st.State != session.Ready.String() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(st)
	})
	return mux
}

func (r *runner) serveMetrics(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: r.handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		r.logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return srv
}
