package discovery

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/danmuck/presencectl/internal/logging"
	"github.com/danmuck/presencectl/internal/transport"
)

// DefaultWatchInterval is the rescan period when no filesystem event arrives.
const DefaultWatchInterval = 2 * time.Second

// Watch reports the discovered endpoint set to fn once at start and again
// every time it changes, until ctx ends. Socket directories are watched with
// fsnotify; the ticker covers pipes and directories created after start.
func Watch(ctx context.Context, l *Locator, interval time.Duration, fn func([]transport.Endpoint)) error {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	logger := logging.For("discovery")

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn().Err(err).Msg("fsnotify unavailable; polling only")
	} else {
		defer watcher.Close()
		for _, dir := range l.Locations() {
			if err := watcher.Add(dir); err != nil {
				logger.Debug().Str("dir", dir).Err(err).Msg("watch skipped")
				continue
			}
		}
		events = watcher.Events
		errs = watcher.Errors
	}

	current := l.Discover()
	fn(current)
	rescan := func() {
		next := l.Discover()
		if sameEndpoints(current, next) {
			return
		}
		logger.Debug().Int("before", len(current)).Int("after", len(next)).Msg("endpoints changed")
		current = next
		fn(current)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if strings.HasPrefix(filepath.Base(ev.Name), transport.BaseName) {
				rescan()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn().Err(err).Msg("watch error")
		case <-ticker.C:
			rescan()
		}
	}
}

func sameEndpoints(a, b []transport.Endpoint) bool {
	return slices.Equal(a, b)
}
