package discovery

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/danmuck/presencectl/internal/transport"
)

// SandboxApp is the Flatpak application id whose runtime dir may hold the socket.
const SandboxApp = "com.discordapp.Discord"

var tempEnvKeys = []string{"TMPDIR", "TMP", "TEMP"}

// Locator computes candidate endpoints. The zero value is not usable; use New.
// Every field can be replaced for tests.
type Locator struct {
	Getenv func(string) string
	Getuid func() int
	Probe  func(transport.Endpoint) bool
	GOOS   string
}

func New() *Locator {
	return &Locator{
		Getenv: os.Getenv,
		Getuid: os.Getuid,
		Probe:  probe,
		GOOS:   runtime.GOOS,
	}
}

// Discover runs a fresh probe with the platform defaults.
func Discover() []transport.Endpoint {
	return New().Discover()
}

// Discover returns the candidates whose existence probe succeeds, in priority
// order. It never fails; an empty result means nothing is listening.
func (l *Locator) Discover() []transport.Endpoint {
	candidates := l.Candidates()
	found := make([]transport.Endpoint, 0, 2)
	for _, ep := range candidates {
		if l.Probe(ep) {
			found = append(found, ep)
		}
	}
	return found
}

// Candidates lists every address probed: location priority first, then
// ascending ordinal within a location.
func (l *Locator) Candidates() []transport.Endpoint {
	if l.GOOS == "windows" {
		out := make([]transport.Endpoint, 0, transport.MaxOrdinal+1)
		for n := 0; n <= transport.MaxOrdinal; n++ {
			out = append(out, transport.PipeEndpoint(n))
		}
		return out
	}
	dirs := l.Locations()
	out := make([]transport.Endpoint, 0, len(dirs)*(transport.MaxOrdinal+1))
	for _, dir := range dirs {
		for n := 0; n <= transport.MaxOrdinal; n++ {
			out = append(out, transport.SocketEndpoint(dir, n))
		}
	}
	return out
}

// Locations returns the socket directories in probe order: the runtime dir,
// the temp dir, then (Linux) the sandboxed app runtime dir. Duplicates are
// dropped. Windows has no directories; pipes live in their own namespace.
func (l *Locator) Locations() []string {
	if l.GOOS == "windows" {
		return nil
	}
	runtimeDir := l.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join("/run/user", strconv.Itoa(l.Getuid()))
	}
	tempDir := "/tmp"
	for _, key := range tempEnvKeys {
		if v := l.Getenv(key); v != "" {
			tempDir = v
			break
		}
	}

	dirs := []string{runtimeDir, tempDir}
	if l.GOOS == "linux" {
		dirs = append(dirs, filepath.Join(runtimeDir, "app", SandboxApp))
	}

	seen := make(map[string]struct{}, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		d = filepath.Clean(d)
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
