package async

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/presencectl/internal/protocol"
	"github.com/danmuck/presencectl/internal/testutil/testlog"
)

func TestReadExactReturnsRequestedBytes(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	c := Wrap(client)
	defer c.Shutdown()

	go func() {
		_, _ = server.Write([]byte{1, 2})
		_, _ = server.Write([]byte{3, 4, 5, 6})
	}()
	got, err := c.ReadExact(context.Background(), 6)
	if err != nil || len(got) != 6 || got[5] != 6 {
		t.Fatalf("read got=%v err=%v", got, err)
	}
}

func TestReadAfterPeerCloseIsSocketClosed(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	c := Wrap(client)
	defer c.Shutdown()
	_ = server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.ReadExact(ctx, 8)
	if !errors.Is(err, protocol.ErrSocketClosed) || !errors.Is(err, io.EOF) {
		t.Fatalf("expected socket closed with EOF, got %v", err)
	}
	if !protocol.IsRecoverable(err) {
		t.Fatalf("socket closed must be recoverable")
	}
}

func TestCancelUnblocksPendingRead(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	defer server.Close()
	c := Wrap(client)
	defer c.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.ReadExact(ctx, 8)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, protocol.ErrSocketClosed) || !errors.Is(err, context.Canceled) {
			t.Fatalf("expected socket closed caused by cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("read still blocked after cancel")
	}
}

func TestCancelUnblocksPendingWrite(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	defer server.Close()
	c := Wrap(client)
	defer c.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := c.WriteAll(ctx, []byte("nobody reads this"))
	if !errors.Is(err, protocol.ErrSocketClosed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected socket closed caused by deadline, got %v", err)
	}
}

func TestAlreadyCancelledContextFailsFast(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	defer server.Close()
	c := Wrap(client)
	defer c.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.ReadExact(ctx, 1); !errors.Is(err, protocol.ErrSocketClosed) {
		t.Fatalf("expected socket closed, got %v", err)
	}
}

func TestShutdownUnblocksPendingRead(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	defer server.Close()
	c := Wrap(client)

	done := make(chan error, 1)
	go func() {
		_, err := c.ReadExact(context.Background(), 8)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	_ = c.Shutdown()
	select {
	case err := <-done:
		if !errors.Is(err, protocol.ErrSocketClosed) {
			t.Fatalf("expected socket closed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("read still blocked after shutdown")
	}
}
