package transport

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Family is the kind of local channel an Endpoint names.
type Family int

const (
	DomainSocket Family = iota
	NamedPipe
)

func (f Family) String() string {
	switch f {
	case DomainSocket:
		return "unix"
	case NamedPipe:
		return "pipe"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

const (
	// BaseName is the file or pipe name stem; the ordinal is appended.
	BaseName = "discord-ipc-"

	// MaxOrdinal is the highest ordinal probed.
	MaxOrdinal = 9

	// PipePrefix is the Windows named-pipe namespace.
	PipePrefix = `\\.\pipe\`
)

// Endpoint is one candidate listener address. Ordinal is informational.
type Endpoint struct {
	Family  Family
	Address string
	Ordinal int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%s", e.Family, e.Address)
}

// Name returns the conventional listener name for ordinal n.
func Name(n int) string {
	return BaseName + strconv.Itoa(n)
}

// PipeEndpoint builds the Windows endpoint for ordinal n.
func PipeEndpoint(n int) Endpoint {
	return Endpoint{Family: NamedPipe, Address: PipePrefix + Name(n), Ordinal: n}
}

// SocketEndpoint builds the domain-socket endpoint for ordinal n under dir.
func SocketEndpoint(dir string, n int) Endpoint {
	return Endpoint{Family: DomainSocket, Address: filepath.Join(dir, Name(n)), Ordinal: n}
}

// ParseEndpoint turns an explicit address into an Endpoint. The family follows
// the pipe prefix; the ordinal comes from a trailing discord-ipc-<n>, else 0.
func ParseEndpoint(address string) (Endpoint, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Endpoint{}, ErrEmptyAddress
	}
	ep := Endpoint{Family: DomainSocket, Address: address}
	base := address
	if strings.HasPrefix(strings.ToLower(address), strings.ToLower(PipePrefix)) {
		ep.Family = NamedPipe
		base = address[len(PipePrefix):]
	} else {
		base = filepath.Base(address)
	}
	if rest, ok := strings.CutPrefix(base, BaseName); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 && n <= MaxOrdinal {
			ep.Ordinal = n
		}
	}
	return ep, nil
}
