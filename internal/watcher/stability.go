package watcher

import (
	"context"
	"os"
	"time"
)

// stability decides when a file has finished being written. Creation events
// fire before writers finish, so the file is sampled until its size holds
// still for a full settle window.
//
// A single size sample after a fixed sleep has a false-positive window: a
// writer pausing across exactly one settle interval looks finished.
// Resetting the timer on every subsequent filesystem event for the path,
// and requiring two consecutive equal non-zero size samples, closes that
// window for any writer that generates events while it writes.
type stability struct {
	settle time.Duration
}

// Wait blocks until path settles. touches delivers later filesystem events
// for the same path and resets the settle timer. Returns false when the file
// vanished, stayed empty, or the context was cancelled. All of those are
// treated as abandonment, not errors.
func (s stability) Wait(ctx context.Context, path string, touches <-chan struct{}) bool {
	lastSize := int64(-1)
	if info, err := os.Stat(path); err == nil {
		lastSize = info.Size()
	}

	timer := time.NewTimer(s.settle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false

		case <-touches:
			// Writer still active: push the settle window out.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.settle)

		case <-timer.C:
			info, err := os.Stat(path)
			if err != nil {
				// Vanished mid-check: abandoned.
				return false
			}

			size := info.Size()
			if size == lastSize {
				// Two consecutive zero samples mean an empty file, not a
				// settled one.
				return size > 0
			}

			lastSize = size
			timer.Reset(s.settle)
		}
	}
}
