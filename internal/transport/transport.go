package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrEmptyAddress       = errors.New("transport: empty endpoint address")
	ErrUnknownBackend     = errors.New("transport: unknown backend")
	ErrUnsupportedFamily  = errors.New("transport: endpoint family not supported on this platform")
	ErrBackendRegistered  = errors.New("transport: backend already registered")
	ErrNegativeReadLength = errors.New("transport: negative read length")
)

// Transport opens duplex byte channels. Implementations differ only in how
// they wait; everything above this interface is shared.
type Transport interface {
	Open(ctx context.Context, ep Endpoint) (Conn, error)
}

// Conn is one open channel. ReadExact returns exactly n bytes or an error;
// WriteAll writes all of p or returns an error. Shutdown is idempotent and
// unblocks a pending read, which then fails with a socket-closed error.
type Conn interface {
	ReadExact(ctx context.Context, n int) ([]byte, error)
	WriteAll(ctx context.Context, p []byte) error
	Shutdown() error
}

// Factory builds a Transport for one execution model.
type Factory func() Transport

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend selectable by name. Backends call it from init.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	name = strings.ToLower(name)
	if _, ok := registry[name]; ok {
		panic(fmt.Errorf("%w: %s", ErrBackendRegistered, name))
	}
	registry[name] = f
}

// Select returns the backend registered under name. It is resolved once at
// startup; callers never switch backends on a live session.
func Select(name string) (Transport, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownBackend, name, strings.Join(backendsLocked(), ", "))
	}
	return f(), nil
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return backendsLocked()
}

func backendsLocked() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
