package runtime

import (
	"context"
	"os"
	"time"
)

// WatchFile polls path's size and modification time and invokes handler
// whenever they change. The settings file is hand-editable and shared with
// the interactive client, so the service reloads on external writes.
// Creation and deletion count as changes; the returned cancel function
// stops the watcher.
func WatchFile(ctx context.Context, path string, interval time.Duration, handler func()) func() {
	if interval <= 0 {
		interval = time.Second
	}

	watchCtx, cancel := context.WithCancel(ctx)

	go func() {
		lastSize, lastMod, lastExists := statFile(path)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				size, mod, exists := statFile(path)
				if size != lastSize || !mod.Equal(lastMod) || exists != lastExists {
					lastSize, lastMod, lastExists = size, mod, exists
					if handler != nil {
						handler()
					}
				}
			}
		}
	}()

	return cancel
}

func statFile(path string) (int64, time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, time.Time{}, false
	}
	return info.Size(), info.ModTime(), true
}
