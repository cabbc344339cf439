// Package ipctest provides a scripted in-process IPC peer for tests. Each
// connection the client opens is served by the next Script in order.
package ipctest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/danmuck/presencectl/internal/protocol"
	"github.com/danmuck/presencectl/internal/protocol/frame"
	"github.com/danmuck/presencectl/internal/transport"
)

var ErrNoListener = errors.New("ipctest: no scripted listener left")

// Peer is the desktop-client side of one connection.
type Peer struct {
	conn net.Conn
}

func (p *Peer) ReadFrame() (frame.Frame, error) {
	return frame.Decode(p.conn)
}

func (p *Peer) WriteFrame(op frame.Opcode, payload []byte) error {
	return frame.Write(p.conn, op, payload)
}

func (p *Peer) WriteJSON(op frame.Opcode, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.WriteFrame(op, raw)
}

// Expect reads one frame and checks its opcode.
func (p *Peer) Expect(op frame.Opcode) (frame.Frame, error) {
	f, err := p.ReadFrame()
	if err != nil {
		return frame.Frame{}, err
	}
	if f.Opcode != op {
		return f, fmt.Errorf("ipctest: expected %s frame, got %s (%s)", op, f.Opcode, f.Payload)
	}
	return f, nil
}

func (p *Peer) Close() error {
	return p.conn.Close()
}

// Step is one scripted action.
type Step func(p *Peer) error

// Script is the full conversation for one connection. After the last step the
// peer drains input until the client hangs up.
type Script []Step

// Serve runs s over c and closes c when done.
func Serve(c net.Conn, s Script) error {
	p := &Peer{conn: c}
	defer c.Close()
	for _, step := range s {
		if err := step(p); err != nil {
			return err
		}
	}
	_, _ = io.Copy(io.Discard, c)
	return nil
}

// Transport hands the client half of a net.Pipe to the session and serves the
// other half with the next script.
type Transport struct {
	wrap func(net.Conn) transport.Conn

	mu      sync.Mutex
	scripts []Script
	opened  []transport.Endpoint
	wg      sync.WaitGroup
	errs    []error
}

// New builds a scripted transport. wrap is a backend's Wrap function, so the
// same scripts run under every execution model.
func New(wrap func(net.Conn) transport.Conn, scripts ...Script) *Transport {
	return &Transport{wrap: wrap, scripts: scripts}
}

func (t *Transport) Open(ctx context.Context, ep transport.Endpoint) (transport.Conn, error) {
	t.mu.Lock()
	t.opened = append(t.opened, ep)
	if len(t.scripts) == 0 {
		t.mu.Unlock()
		return nil, protocol.ConnectionFailed(ErrNoListener, ep.Address)
	}
	s := t.scripts[0]
	t.scripts = t.scripts[1:]
	t.mu.Unlock()

	client, server := net.Pipe()
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := Serve(server, s); err != nil {
			t.mu.Lock()
			t.errs = append(t.errs, err)
			t.mu.Unlock()
		}
	}()
	return t.wrap(client), nil
}

// Opened returns every endpoint Open was called with.
func (t *Transport) Opened() []transport.Endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]transport.Endpoint(nil), t.opened...)
}

// Wait blocks until every started script returns and fails tb on script errors.
// The client must have shut its connections down first.
func (t *Transport) Wait(tb testing.TB) {
	tb.Helper()
	t.wg.Wait()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, err := range t.errs {
		tb.Errorf("peer script: %v", err)
	}
}

// ServeListener accepts one connection per script from l until the scripts
// run out or l is closed.
func ServeListener(tb testing.TB, l net.Listener, scripts ...Script) {
	tb.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, s := range scripts {
			c, err := l.Accept()
			if err != nil {
				return
			}
			if err := Serve(c, s); err != nil {
				tb.Errorf("peer script: %v", err)
			}
		}
	}()
	tb.Cleanup(func() {
		_ = l.Close()
		<-done
	})
}
