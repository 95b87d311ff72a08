package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/audioscribe/internal/fileops"
	"github.com/audioscribe/internal/jobs"
	"github.com/audioscribe/pkg/logger"
)

// CompletedDirName is the sibling subdirectory handled files move into.
const CompletedDirName = "completed"

const stopTimeout = 5 * time.Second

// JobDispatcher is the slice of the dispatcher the watcher needs. Watched
// files go through the same dispatch path as interactive uploads.
type JobDispatcher interface {
	Dispatch(req jobs.Request) (string, error)
}

// Options configures one watch session.
type Options struct {
	Dir           string
	Model         string
	Language      string
	Formats       []string
	MoveCompleted bool
	Settle        time.Duration
}

// Watcher turns filesystem creation events in one non-recursive directory
// into dispatcher calls, at most once per physical file.
type Watcher struct {
	opts     Options
	dispatch JobDispatcher
	fsw      *fsnotify.Watcher
	settle   stability

	// inflight maps each path being handled to its touch channel. Guarded
	// by its own mutex so unrelated files never serialize behind job state.
	mu       sync.Mutex
	inflight map[string]chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWatcher(dispatch JobDispatcher, opts Options) (*Watcher, error) {
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}

	if err := fileops.EnsureDir(opts.Dir); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(opts.Dir); err != nil {
		fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		opts:     opts,
		dispatch: dispatch,
		fsw:      fsw,
		settle:   stability{settle: opts.Settle},
		inflight: make(map[string]chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	w.wg.Add(1)
	go w.loop()

	logger.Infof("watcher started: %s (model=%s)", opts.Dir, opts.Model)
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warnf("watcher: fs error: %v", err)
		}
	}
}

// handleEvent admits newly created audio files and forwards later write
// activity to in-flight stability checks. One bad file never stops the loop.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !fileops.IsAudioFile(path) {
		return
	}

	w.mu.Lock()
	if touches, inflight := w.inflight[path]; inflight {
		w.mu.Unlock()
		// Duplicate event for a path already being handled: reset its
		// settle timer instead of admitting it twice.
		select {
		case touches <- struct{}{}:
		default:
		}
		return
	}

	if event.Op&fsnotify.Create == 0 {
		// Writes only matter for paths already in flight.
		w.mu.Unlock()
		return
	}

	touches := make(chan struct{}, 8)
	w.inflight[path] = touches
	w.mu.Unlock()

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		w.release(path)
		return
	}

	w.wg.Add(1)
	go w.process(path, touches)
}

func (w *Watcher) process(path string, touches <-chan struct{}) {
	defer w.wg.Done()
	defer w.release(path)

	logger.Infof("watcher: detected %s", filepath.Base(path))

	if !w.settle.Wait(w.ctx, path, touches) {
		logger.Infof("watcher: abandoned %s (not ready or removed)", filepath.Base(path))
		return
	}

	done := make(chan jobs.Job, 1)
	_, err := w.dispatch.Dispatch(jobs.Request{
		Path:       path,
		SourceName: filepath.Base(path),
		Model:      w.opts.Model,
		Language:   w.opts.Language,
		Formats:    w.opts.Formats,
		OnDone:     func(job jobs.Job) { done <- job },
	})
	if err != nil {
		logger.Warnf("watcher: dispatch rejected %s: %v", filepath.Base(path), err)
		return
	}

	select {
	case <-w.ctx.Done():
		// Watcher is shutting down; the job keeps running in the
		// dispatcher, the file just stays where it is.
		return
	case job := <-done:
		w.finish(path, job)
	}
}

func (w *Watcher) finish(path string, job jobs.Job) {
	switch job.Status {
	case jobs.StatusCompleted:
		if !w.opts.MoveCompleted {
			return
		}
		// Lazily created sibling dir gives an auditable trail and
		// prevents reprocessing after a watcher restart.
		dest := filepath.Join(filepath.Dir(path), CompletedDirName, filepath.Base(path))
		if err := fileops.Move(path, dest); err != nil {
			logger.Warnf("watcher: move to completed: %v", err)
			return
		}
		logger.Infof("watcher: completed %s → %s", filepath.Base(path), dest)

	case jobs.StatusFailed:
		// Left in place for manual inspection. Event-driven intake means
		// it will not retry until recreated or the watcher restarts.
		logger.Errorf("watcher: failed %s: %s (file left in place)", filepath.Base(path), job.Error)

	default:
		logger.Infof("watcher: job for %s ended as %s", filepath.Base(path), job.Status)
	}
}

// release removes the path from the in-flight set so a later recreation of
// the same path is processed again.
func (w *Watcher) release(path string) {
	w.mu.Lock()
	delete(w.inflight, path)
	w.mu.Unlock()
}

// stop tears the watcher down, bounded by stopTimeout.
func (w *Watcher) stop() error {
	w.cancel()
	_ = w.fsw.Close()

	settled := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(settled)
	}()

	select {
	case <-settled:
		logger.Info("watcher stopped")
		return nil
	case <-time.After(stopTimeout):
		return errors.New("watcher stop timed out")
	}
}

// Status describes the active watch session.
type Status struct {
	Active bool   `json:"active"`
	Dir    string `json:"path,omitempty"`
	Model  string `json:"model,omitempty"`
}

// Service owns the single active watcher per process.
type Service struct {
	dispatch JobDispatcher

	mu      sync.Mutex
	current *Watcher
}

// NewService creates a watcher service with no active session.
func NewService(dispatch JobDispatcher) *Service {
	return &Service{dispatch: dispatch}
}

// Start begins watching dir, stopping any previous session first.
func (s *Service) Start(opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		if err := s.current.stop(); err != nil {
			logger.Warnf("watcher: stopping previous session: %v", err)
		}
		s.current = nil
	}

	w, err := newWatcher(s.dispatch, opts)
	if err != nil {
		return err
	}
	s.current = w
	return nil
}

// Stop terminates the active session, if any.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	err := s.current.stop()
	s.current = nil
	return err
}

// Status reports whether a session is active and where it points.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Status{}
	}
	return Status{Active: true, Dir: s.current.opts.Dir, Model: s.current.opts.Model}
}
