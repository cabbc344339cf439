// Package async is the cooperative transport backend. Waiting parks only the
// calling goroutine on the runtime netpoller, and every wait ends early when
// its ctx is cancelled. An interrupted call leaves the channel unusable; the
// session closes it.
package async

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/danmuck/presencectl/internal/protocol"
	"github.com/danmuck/presencectl/internal/transport"
)

const Name = "async"

func init() {
	transport.Register(Name, func() transport.Transport { return New() })
}

// expired is a deadline already in the past; setting it wakes blocked I/O.
var expired = time.Unix(1, 0)

type Transport struct{}

func New() *Transport {
	return &Transport{}
}

func (t *Transport) Open(ctx context.Context, ep transport.Endpoint) (transport.Conn, error) {
	c, err := transport.Dial(ctx, ep)
	if err != nil {
		return nil, err
	}
	return Wrap(c), nil
}

// Wrap adapts an already open connection.
func Wrap(c net.Conn) transport.Conn {
	return &conn{c: c}
}

type conn struct {
	c         net.Conn
	closeOnce sync.Once
	closeErr  error
}

func (c *conn) ReadExact(ctx context.Context, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, protocol.SocketClosed(err)
	}
	stop := context.AfterFunc(ctx, c.interrupt)
	b, err := transport.ReadFull(c.c, n)
	if !stop() {
		return nil, protocol.SocketClosed(context.Cause(ctx))
	}
	return b, err
}

func (c *conn) WriteAll(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return protocol.SocketClosed(err)
	}
	stop := context.AfterFunc(ctx, c.interrupt)
	err := transport.WriteFull(c.c, p)
	if !stop() {
		return protocol.SocketClosed(context.Cause(ctx))
	}
	return err
}

func (c *conn) interrupt() {
	_ = c.c.SetDeadline(expired)
}

func (c *conn) Shutdown() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.c.Close()
	})
	return c.closeErr
}
