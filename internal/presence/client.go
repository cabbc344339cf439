// Package presence is the caller-facing client: connect, publish or clear a
// status payload, reconnect and close. A Client is not safe for concurrent
// use; callers sharing one across goroutines must serialize access.
package presence

import (
	"context"
	"os"
	"time"

	"github.com/danmuck/presencectl/internal/logging"
	"github.com/danmuck/presencectl/internal/protocol"
	"github.com/danmuck/presencectl/internal/protocol/session"
	"github.com/danmuck/presencectl/internal/transport"
	"github.com/rs/zerolog"
)

type validator interface {
	Validate() error
}

type Client struct {
	sess   *session.Session
	pid    int
	logger zerolog.Logger
}

func New(tr transport.Transport, cfg session.Config) *Client {
	pid := cfg.PID
	if pid <= 0 {
		pid = os.Getpid()
	}
	s := session.New(tr, cfg)
	return &Client{
		sess:   s,
		pid:    pid,
		logger: logging.For("presence").With().Str("session", s.ID()).Logger(),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	return c.sess.Connect(ctx)
}

// Publish sends SET_ACTIVITY with the given payload. Payloads that know how
// to validate themselves are checked before anything is written.
func (c *Client) Publish(ctx context.Context, activity any) error {
	if v, ok := activity.(validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	_, err := c.Send(ctx, protocol.CmdSetActivity, protocol.ActivityArgs{PID: c.pid, Activity: activity})
	if err != nil {
		c.logger.Debug().Err(err).Msg("publish failed")
		return err
	}
	c.logger.Debug().Msg("activity published")
	return nil
}

// Clear sends SET_ACTIVITY with a null activity.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.Send(ctx, protocol.CmdSetActivity, protocol.ActivityArgs{PID: c.pid})
	return err
}

func (c *Client) Send(ctx context.Context, cmd string, args any) (protocol.Response, error) {
	return c.sess.SendCommand(ctx, cmd, args)
}

func (c *Client) Reconnect(ctx context.Context) error {
	return c.sess.Reconnect(ctx)
}

func (c *Client) Close() error {
	return c.sess.Close()
}

func (c *Client) State() session.State { return c.sess.State() }

func (c *Client) Endpoint() (transport.Endpoint, bool) { return c.sess.Endpoint() }

func (c *Client) Ready() *session.ReadyInfo { return c.sess.Ready() }

func (c *Client) PID() int { return c.pid }

// ConnectWithRetry connects, retrying recoverable failures with backoff. A
// client already Ready is left alone; one in any other reusable state is
// reconnected.
func ConnectWithRetry(ctx context.Context, c *Client, cfg session.RetryConfig, opts ...session.RetryOption) error {
	opts = append([]session.RetryOption{
		session.WithRetryIf(protocol.IsRecoverable),
		session.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			c.logger.Info().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("connect retry")
		}),
	}, opts...)
	_, err := session.Retry(ctx, cfg, func(ctx context.Context, attempt int) (struct{}, error) {
		switch st := c.State(); {
		case st == session.Ready:
			return struct{}{}, nil
		case st.CanConnect():
			return struct{}{}, c.Connect(ctx)
		default:
			return struct{}{}, c.Reconnect(ctx)
		}
	}, opts...)
	return err
}
