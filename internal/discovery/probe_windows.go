//go:build windows

package discovery

import (
	"os"

	"golang.org/x/sys/windows"

	"github.com/danmuck/presencectl/internal/transport"
)

// probe checks the pipe namespace without opening the pipe, so no server
// instance is consumed.
func probe(ep transport.Endpoint) bool {
	switch ep.Family {
	case transport.NamedPipe:
		name, err := windows.UTF16PtrFromString(ep.Address)
		if err != nil {
			return false
		}
		var data windows.Win32finddata
		h, err := windows.FindFirstFile(name, &data)
		if err != nil {
			return false
		}
		_ = windows.FindClose(h)
		return true
	default:
		_, err := os.Stat(ep.Address)
		return err == nil
	}
}
