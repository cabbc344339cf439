package presence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/presencectl/internal/activity"
	"github.com/danmuck/presencectl/internal/protocol"
	"github.com/danmuck/presencectl/internal/protocol/frame"
	"github.com/danmuck/presencectl/internal/protocol/session"
	"github.com/danmuck/presencectl/internal/testutil/ipctest"
	"github.com/danmuck/presencectl/internal/testutil/testlog"
	"github.com/danmuck/presencectl/internal/transport"
	"github.com/danmuck/presencectl/internal/transport/blocking"
)

const testClientID = "1234567890"

func testConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.ClientID = testClientID
	cfg.PID = 42
	cfg.NewNonce = func() string { return "n-1" }
	ep := transport.SocketEndpoint("/run/user/1000", 0)
	cfg.Discover = func() []transport.Endpoint { return []transport.Endpoint{ep} }
	return cfg
}

// record answers one command with a success response and keeps its raw body.
func record(dst *[]byte) ipctest.Step {
	return func(p *ipctest.Peer) error {
		f, err := p.Expect(frame.OpFrame)
		if err != nil {
			return err
		}
		*dst = f.Payload
		var cmd protocol.Command
		if err := json.Unmarshal(f.Payload, &cmd); err != nil {
			return err
		}
		return p.WriteJSON(frame.OpFrame, protocol.Response{Cmd: cmd.Cmd, Nonce: cmd.Nonce, Data: json.RawMessage(`{}`)})
	}
}

func TestPublishAndClearWireShape(t *testing.T) {
	testlog.Start(t)
	var published, cleared []byte
	script := append(ipctest.Handshake(testClientID), record(&published), record(&cleared), ipctest.Expect(frame.OpClose, nil))
	tr := ipctest.New(blocking.Wrap, script)
	c := New(tr, testConfig())
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Publish(ctx, &activity.Activity{State: "Playing"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	tr.Wait(t)
	if want := `{"cmd":"SET_ACTIVITY","args":{"pid":42,"activity":{"state":"Playing"}},"nonce":"n-1"}`; string(published) != want {
		t.Fatalf("publish got=%s want=%s", published, want)
	}
	if want := `{"cmd":"SET_ACTIVITY","args":{"pid":42,"activity":null},"nonce":"n-1"}`; string(cleared) != want {
		t.Fatalf("clear got=%s want=%s", cleared, want)
	}
}

func TestPublishInvalidActivityWritesNothing(t *testing.T) {
	testlog.Start(t)
	tr := ipctest.New(blocking.Wrap, append(ipctest.Handshake(testClientID), ipctest.Expect(frame.OpClose, nil)))
	c := New(tr, testConfig())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	err := c.Publish(context.Background(), &activity.Activity{State: "x"})
	if !errors.Is(err, protocol.ErrInvalidActivity) {
		t.Fatalf("expected invalid activity, got %v", err)
	}
	if c.State() != session.Ready {
		t.Fatalf("local validation must not close the session, state=%v", c.State())
	}
	_ = c.Close()
	tr.Wait(t)
}

func TestDefaultPIDIsProcessID(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.PID = 0
	c := New(ipctest.New(blocking.Wrap), cfg)
	if c.PID() != os.Getpid() {
		t.Fatalf("pid got=%d want=%d", c.PID(), os.Getpid())
	}
}

// flaky refuses the first n opens with a recoverable error.
type flaky struct {
	mu   sync.Mutex
	n    int
	next transport.Transport
}

func (f *flaky) Open(ctx context.Context, ep transport.Endpoint) (transport.Conn, error) {
	f.mu.Lock()
	if f.n > 0 {
		f.n--
		f.mu.Unlock()
		return nil, protocol.ConnectionFailed(errors.New("connection refused"), ep.Address)
	}
	f.mu.Unlock()
	return f.next.Open(ctx, ep)
}

func noSleep(into *[]time.Duration) session.RetryOption {
	return session.WithSleeper(func(_ context.Context, d time.Duration) error {
		*into = append(*into, d)
		return nil
	})
}

func TestConnectWithRetryRecoversFromRefusal(t *testing.T) {
	testlog.Start(t)
	inner := ipctest.New(blocking.Wrap, append(ipctest.Handshake(testClientID), ipctest.Expect(frame.OpClose, nil)))
	c := New(&flaky{n: 2, next: inner}, testConfig())
	var slept []time.Duration
	err := ConnectWithRetry(context.Background(), c, session.DefaultRetryConfig(), noSleep(&slept))
	if err != nil {
		t.Fatalf("connect with retry: %v", err)
	}
	if c.State() != session.Ready {
		t.Fatalf("state got=%v", c.State())
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("backoff got=%v", slept)
	}
	_ = c.Close()
	inner.Wait(t)
}

func TestConnectWithRetryGivesUpOnDiscordError(t *testing.T) {
	testlog.Start(t)
	tr := ipctest.New(blocking.Wrap, ipctest.Script{
		ipctest.ExpectHandshake(testClientID),
		ipctest.Send(frame.OpFrame, ipctest.ErrorEvent(4000, "Invalid Client ID", "")),
	})
	c := New(tr, testConfig())
	var slept []time.Duration
	err := ConnectWithRetry(context.Background(), c, session.DefaultRetryConfig(), noSleep(&slept))
	if code, _, ok := protocol.AsDiscordError(err); !ok || code != 4000 {
		t.Fatalf("expected discord error, got %v", err)
	}
	if len(tr.Opened()) != 1 || len(slept) != 0 {
		t.Fatalf("opens=%d sleeps=%v", len(tr.Opened()), slept)
	}
	tr.Wait(t)
}

func TestConnectWithRetryReconnectsAfterHangup(t *testing.T) {
	testlog.Start(t)
	var published []byte
	tr := ipctest.New(blocking.Wrap,
		append(ipctest.Handshake(testClientID), ipctest.Hangup()),
		append(ipctest.Handshake(testClientID), record(&published), ipctest.Expect(frame.OpClose, nil)),
	)
	c := New(tr, testConfig())
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	a := &activity.Activity{Details: "Editing"}
	err := c.Publish(ctx, a)
	if !protocol.IsRecoverable(err) || c.State() != session.Closed {
		t.Fatalf("publish after hangup err=%v state=%v", err, c.State())
	}
	if err := ConnectWithRetry(ctx, c, session.DefaultRetryConfig()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if err := c.Publish(ctx, a); err != nil {
		t.Fatalf("publish after reconnect: %v", err)
	}
	_ = c.Close()
	tr.Wait(t)
	if len(published) == 0 {
		t.Fatalf("second connection never saw the command")
	}
}

func TestConnectWithRetryLeavesReadyClientAlone(t *testing.T) {
	testlog.Start(t)
	tr := ipctest.New(blocking.Wrap, append(ipctest.Handshake(testClientID), ipctest.Expect(frame.OpClose, nil)))
	c := New(tr, testConfig())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := ConnectWithRetry(context.Background(), c, session.DefaultRetryConfig()); err != nil {
		t.Fatalf("retry on ready client: %v", err)
	}
	if len(tr.Opened()) != 1 {
		t.Fatalf("opens got=%d want=1", len(tr.Opened()))
	}
	_ = c.Close()
	tr.Wait(t)
}

