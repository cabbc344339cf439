package session

import (
	"math"
	"math/rand"
	"time"
)

// RetryConfig bounds a retried operation. Delay for attempt a (1-based) is
// min(InitialDelay * Multiplier^(a-1), MaxDelay).
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter scales each delay by a random factor in [0.5, 1.5).
	Jitter bool
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the deterministic delay for attempt (1-based).
func (c RetryConfig) Delay(attempt int) time.Duration {
	c.Jitter = false
	return NextBackoffDelay(c, attempt, nil)
}

// Delays lists the delay after each of the MaxAttempts attempts.
func (c RetryConfig) Delays() []time.Duration {
	out := make([]time.Duration, 0, max(c.MaxAttempts, 0))
	for a := 1; a <= c.MaxAttempts; a++ {
		out = append(out, c.Delay(a))
	}
	return out
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg RetryConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}
