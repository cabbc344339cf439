//go:build windows

package transport

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

func dial(ctx context.Context, ep Endpoint) (net.Conn, error) {
	switch ep.Family {
	case NamedPipe:
		return winio.DialPipeContext(ctx, ep.Address)
	default:
		// AF_UNIX is available on Windows 10 1803 and later.
		var d net.Dialer
		return d.DialContext(ctx, "unix", ep.Address)
	}
}
