//go:build !windows

package discovery

import (
	"golang.org/x/sys/unix"

	"github.com/danmuck/presencectl/internal/transport"
)

// probe reports whether a socket file exists at ep. Any stat failure,
// including permission errors on the parent directory, counts as absent.
func probe(ep transport.Endpoint) bool {
	if ep.Family != transport.DomainSocket {
		return false
	}
	var st unix.Stat_t
	if err := unix.Stat(ep.Address, &st); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFSOCK
}
