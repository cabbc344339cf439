// Package discovery enumerates local IPC endpoints that appear to have a
// listener. Results are computed fresh on every call and never cached.
package discovery
