package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestStabilityStableFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.mp3", []byte("audio data"))
	s := stability{settle: 30 * time.Millisecond}

	assert.True(t, s.Wait(context.Background(), path, nil))
}

func TestStabilityVanishedFile(t *testing.T) {
	s := stability{settle: 20 * time.Millisecond}

	assert.False(t, s.Wait(context.Background(), filepath.Join(t.TempDir(), "gone.mp3"), nil))
}

func TestStabilityEmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.mp3", nil)
	s := stability{settle: 20 * time.Millisecond}

	assert.False(t, s.Wait(context.Background(), path, nil))
}

func TestStabilityGrowingFileHeldBack(t *testing.T) {
	path := writeFile(t, t.TempDir(), "grow.mp3", []byte("x"))
	s := stability{settle: 50 * time.Millisecond}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for i := 0; i < 10; i++ {
			time.Sleep(20 * time.Millisecond)
			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return
			}
			_, _ = f.Write([]byte("more"))
			f.Close()
		}
	}()

	start := time.Now()
	ok := s.Wait(context.Background(), path, nil)
	elapsed := time.Since(start)

	<-writerDone
	assert.True(t, ok)
	// A file whose size keeps changing between samples must not be
	// released before the writer finishes.
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
}

func TestStabilityTouchResetsSettleWindow(t *testing.T) {
	path := writeFile(t, t.TempDir(), "touched.mp3", []byte("audio"))
	s := stability{settle: 60 * time.Millisecond}

	touches := make(chan struct{}, 1)
	go func() {
		for i := 0; i < 5; i++ {
			time.Sleep(25 * time.Millisecond)
			touches <- struct{}{}
		}
	}()

	start := time.Now()
	ok := s.Wait(context.Background(), path, touches)

	assert.True(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 125*time.Millisecond)
}

func TestStabilityCancelled(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.mp3", []byte("audio"))
	s := stability{settle: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	assert.False(t, s.Wait(ctx, path, nil))
}
