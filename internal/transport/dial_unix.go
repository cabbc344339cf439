//go:build !windows

package transport

import (
	"context"
	"fmt"
	"net"
)

func dial(ctx context.Context, ep Endpoint) (net.Conn, error) {
	if ep.Family != DomainSocket {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFamily, ep.Family)
	}
	var d net.Dialer
	return d.DialContext(ctx, "unix", ep.Address)
}
