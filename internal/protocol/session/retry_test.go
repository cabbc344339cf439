package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/presencectl/internal/protocol"
	"github.com/danmuck/presencectl/internal/testutil/testlog"
)

func TestRetryConfigDelays(t *testing.T) {
	testlog.Start(t)
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8000 * time.Millisecond,
		Multiplier:   2.0,
	}
	want := []time.Duration{500, 1000, 2000, 4000, 8000}
	got := cfg.Delays()
	if len(got) != len(want) {
		t.Fatalf("delays got=%v", got)
	}
	for i := range want {
		if got[i] != want[i]*time.Millisecond {
			t.Fatalf("attempt%d got=%v want=%v", i+1, got[i], want[i]*time.Millisecond)
		}
	}
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := RetryConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
	cfg.Multiplier = 0.5
	if got := NextBackoffDelay(cfg, 4, nil); got != 250*time.Millisecond {
		t.Fatalf("sub-1 multiplier got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := RetryConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(cfg, 1, rng)
	if got < 125*time.Millisecond || got > 375*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
	if d := cfg.Delay(1); d != 250*time.Millisecond {
		t.Fatalf("Delay ignores jitter got=%v", d)
	}
}

func recordingSleeper(into *[]time.Duration) Sleeper {
	return func(_ context.Context, d time.Duration) error {
		*into = append(*into, d)
		return nil
	}
}

func TestRetrySleepsBetweenAttemptsUntilSuccess(t *testing.T) {
	testlog.Start(t)
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	var slept []time.Duration
	calls := 0
	got, err := Retry(context.Background(), cfg, func(context.Context, int) (string, error) {
		calls++
		if calls < 3 {
			return "", protocol.ConnectionFailed(errors.New("refused"), "/tmp/discord-ipc-0")
		}
		return "ready", nil
	}, WithSleeper(recordingSleeper(&slept)))
	if err != nil || got != "ready" {
		t.Fatalf("retry got=%q err=%v", got, err)
	}
	if calls != 3 {
		t.Fatalf("calls got=%d want=3", calls)
	}
	if len(slept) != 2 || slept[0] != 100*time.Millisecond || slept[1] != 200*time.Millisecond {
		t.Fatalf("sleeps got=%v", slept)
	}
}

func TestRetryExhaustsAndReturnsFinalError(t *testing.T) {
	testlog.Start(t)
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}
	var slept []time.Duration
	var retried []int
	_, err := Retry(context.Background(), cfg, func(_ context.Context, attempt int) (int, error) {
		return 0, protocol.SocketClosed(fmt.Errorf("attempt %d", attempt))
	}, WithSleeper(recordingSleeper(&slept)), WithOnRetry(func(attempt int, _ time.Duration, _ error) {
		retried = append(retried, attempt)
	}))
	if !errors.Is(err, protocol.ErrSocketClosed) || err.Error() != "ipc: socket closed: attempt 3" {
		t.Fatalf("final error got=%v", err)
	}
	if len(slept) != 2 || len(retried) != 2 || retried[1] != 2 {
		t.Fatalf("sleeps=%v retried=%v", slept, retried)
	}
}

func TestRetryIfStopsOnNonRecoverable(t *testing.T) {
	testlog.Start(t)
	calls := 0
	_, err := Retry(context.Background(), DefaultRetryConfig(), func(context.Context, int) (struct{}, error) {
		calls++
		return struct{}{}, protocol.DiscordError(4000, "Invalid Client ID")
	}, WithRetryIf(protocol.IsRecoverable), WithSleeper(BlockingSleeper))
	if calls != 1 {
		t.Fatalf("calls got=%d want=1", calls)
	}
	if _, _, ok := protocol.AsDiscordError(err); !ok {
		t.Fatalf("expected discord error, got %v", err)
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	testlog.Start(t)
	calls := 0
	_, err := Retry(context.Background(), RetryConfig{}, func(context.Context, int) (int, error) {
		calls++
		return 0, protocol.NoValidSocket()
	})
	if calls != 1 || !errors.Is(err, protocol.ErrNoValidSocket) {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestContextSleeperStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour, Multiplier: 2}
	_, err := Retry(ctx, cfg, func(context.Context, int) (int, error) {
		return 0, protocol.NoValidSocket()
	})
	if time.Since(start) > time.Second {
		t.Fatalf("context sleeper did not return early")
	}
	if !errors.Is(err, context.Canceled) || !errors.Is(err, protocol.ErrNoValidSocket) {
		t.Fatalf("expected cancel joined with last error, got %v", err)
	}
}

func TestBlockingSleeperIgnoresCancel(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := BlockingSleeper(ctx, 20*time.Millisecond); err != nil {
		t.Fatalf("blocking sleeper err=%v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("blocking sleeper returned early")
	}
}
