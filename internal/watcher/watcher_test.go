package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audioscribe/internal/jobs"
)

// fakeDispatcher records dispatch calls and finishes each job with a fixed
// terminal status a moment later.
type fakeDispatcher struct {
	mu     sync.Mutex
	calls  []jobs.Request
	status jobs.Status
	err    error
}

func (f *fakeDispatcher) Dispatch(req jobs.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}

	go func() {
		if req.OnDone != nil {
			req.OnDone(jobs.Job{ID: "job-1", SourceName: req.SourceName, Status: f.status})
		}
	}()
	return "job-1", nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func startTestWatcher(t *testing.T, dir string, fd *fakeDispatcher, move bool) *Watcher {
	t.Helper()
	w, err := newWatcher(fd, Options{
		Dir:           dir,
		Model:         "base",
		Formats:       []string{"txt"},
		MoveCompleted: move,
		Settle:        30 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.stop() })
	return w
}

func createEvent(path string) fsnotify.Event {
	return fsnotify.Event{Name: path, Op: fsnotify.Create}
}

func TestWatcherDedupUnderConcurrentEvents(t *testing.T) {
	dir := t.TempDir()
	fd := &fakeDispatcher{status: jobs.StatusCompleted}
	w := startTestWatcher(t, dir, fd, false)

	path := writeFile(t, dir, "song.mp3", []byte("audio"))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.handleEvent(createEvent(path))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return fd.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// And it stays at one: the duplicates were dropped, not queued.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, fd.callCount())
}

func TestWatcherIgnoresNonAudio(t *testing.T) {
	dir := t.TempDir()
	fd := &fakeDispatcher{status: jobs.StatusCompleted}
	w := startTestWatcher(t, dir, fd, false)

	path := writeFile(t, dir, "readme.txt", []byte("not audio"))
	w.handleEvent(createEvent(path))

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, fd.callCount())
}

func TestWatcherMovesCompletedFile(t *testing.T) {
	dir := t.TempDir()
	fd := &fakeDispatcher{status: jobs.StatusCompleted}
	w := startTestWatcher(t, dir, fd, true)

	path := writeFile(t, dir, "talk.wav", []byte("audio"))
	w.handleEvent(createEvent(path))

	moved := filepath.Join(dir, CompletedDirName, "talk.wav")
	require.Eventually(t, func() bool {
		_, err := os.Stat(moved)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWatcherLeavesFailedFileInPlace(t *testing.T) {
	dir := t.TempDir()
	fd := &fakeDispatcher{status: jobs.StatusFailed}
	w := startTestWatcher(t, dir, fd, true)

	path := writeFile(t, dir, "bad.wav", []byte("audio"))
	w.handleEvent(createEvent(path))

	require.Eventually(t, func() bool {
		return fd.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.FileExists(t, path)
	assert.NoDirExists(t, filepath.Join(dir, CompletedDirName))
}

func TestWatcherReprocessesRecreatedPath(t *testing.T) {
	dir := t.TempDir()
	fd := &fakeDispatcher{status: jobs.StatusCompleted}
	w := startTestWatcher(t, dir, fd, true)

	path := writeFile(t, dir, "episode.mp3", []byte("audio"))
	w.handleEvent(createEvent(path))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, CompletedDirName, "episode.mp3"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	// Same path recreated after the first run concluded: processed again.
	writeFile(t, dir, "episode.mp3", []byte("new audio"))
	w.handleEvent(createEvent(path))

	require.Eventually(t, func() bool {
		return fd.callCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherRealFilesystemEvents(t *testing.T) {
	dir := t.TempDir()
	fd := &fakeDispatcher{status: jobs.StatusCompleted}
	svc := NewService(fd)
	require.NoError(t, svc.Start(Options{
		Dir:     dir,
		Settle:  50 * time.Millisecond,
		Formats: []string{"txt"},
	}))
	defer func() { _ = svc.Stop() }()

	writeFile(t, dir, "incoming.mp3", []byte("audio"))

	require.Eventually(t, func() bool {
		return fd.callCount() == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestServiceSingleActiveWatcher(t *testing.T) {
	fd := &fakeDispatcher{status: jobs.StatusCompleted}
	svc := NewService(fd)

	dirA := t.TempDir()
	dirB := t.TempDir()

	require.NoError(t, svc.Start(Options{Dir: dirA, Settle: 20 * time.Millisecond}))
	require.NoError(t, svc.Start(Options{Dir: dirB, Settle: 20 * time.Millisecond}))

	status := svc.Status()
	assert.True(t, status.Active)
	assert.Equal(t, dirB, status.Dir)

	require.NoError(t, svc.Stop())
	assert.False(t, svc.Status().Active)

	// Stop when idle is a no-op.
	require.NoError(t, svc.Stop())
}
