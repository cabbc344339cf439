package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/presencectl/internal/discovery"
	"github.com/danmuck/presencectl/internal/protocol"
	"github.com/danmuck/presencectl/internal/transport"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultCloseTimeout = 250 * time.Millisecond
)

var ErrInvalidTarget = errors.New("session: invalid endpoint target")

type TargetMode int

const (
	TargetAuto TargetMode = iota
	TargetOrdinal
	TargetPath
)

// Target selects the endpoint connect uses. The zero value is auto: the first
// discovered endpoint.
type Target struct {
	Mode    TargetMode
	Ordinal int
	Path    string
}

func AutoTarget() Target { return Target{} }

func OrdinalTarget(n int) Target { return Target{Mode: TargetOrdinal, Ordinal: n} }

func PathTarget(p string) Target { return Target{Mode: TargetPath, Path: p} }

// ParseTarget accepts "", "auto", an ordinal 0..9, or an explicit address.
func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "auto":
		return AutoTarget(), nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 || n > transport.MaxOrdinal {
			return Target{}, fmt.Errorf("%w: ordinal %d outside 0..%d", ErrInvalidTarget, n, transport.MaxOrdinal)
		}
		return OrdinalTarget(n), nil
	}
	return PathTarget(raw), nil
}

func (t Target) String() string {
	switch t.Mode {
	case TargetOrdinal:
		return strconv.Itoa(t.Ordinal)
	case TargetPath:
		return t.Path
	default:
		return "auto"
	}
}

// Config is fixed for the life of a Session; Reconnect reuses it unchanged.
type Config struct {
	ClientID string
	Target   Target
	// ConnectTimeout bounds discovery, open and handshake together. Zero means
	// a single attempt with no bound.
	ConnectTimeout time.Duration
	// PollInterval spaces open attempts while ConnectTimeout has time left.
	PollInterval time.Duration
	// FallThrough tries the remaining discovered endpoints when the first fails.
	FallThrough    bool
	MaxPayloadSize uint32
	CloseTimeout   time.Duration
	// PID is sent with activity commands by the presence layer.
	PID int

	Discover func() []transport.Endpoint
	NewNonce func() string
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   DefaultPollInterval,
		MaxPayloadSize: protocol.MaxPayloadSize,
		CloseTimeout:   DefaultCloseTimeout,
		Discover:       discovery.Discover,
		NewNonce:       protocol.NewNonce,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxPayloadSize == 0 {
		c.MaxPayloadSize = d.MaxPayloadSize
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = d.CloseTimeout
	}
	if c.Discover == nil {
		c.Discover = d.Discover
	}
	if c.NewNonce == nil {
		c.NewNonce = d.NewNonce
	}
	return c
}
