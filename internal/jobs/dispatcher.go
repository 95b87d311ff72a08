package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/audioscribe/internal/engine"
	"github.com/audioscribe/internal/fileops"
	"github.com/audioscribe/internal/transcript"
	"github.com/audioscribe/pkg/logger"
)

// Request describes one transcription to run.
type Request struct {
	Path       string   // input artifact on disk
	SourceName string   // original filename, display only
	Model      string   // engine model identifier, "" for default
	Language   string   // language hint, "" for auto-detect
	Formats    []string // output formats, empty for defaults

	// RemoveInput deletes Path when the job concludes, on every exit path.
	// Uploads set this; the watcher keeps its files and moves them itself.
	RemoveInput bool

	// OnDone, if set, is invoked exactly once with the job's terminal
	// snapshot, including the cancelled snapshot when the job was deleted
	// mid-flight.
	OnDone func(job Job)
}

// progressUpdate travels from the engine callback to the store drainer.
type progressUpdate struct {
	fraction float64
	message  string
}

// Dispatcher accepts transcription requests, creates store entries, and
// runs the engine asynchronously. One goroutine per active job.
type Dispatcher struct {
	store     *Store
	engines   *engine.Registry
	outputDir string

	// OnTerminal, if set, observes every job that reaches a terminal state
	// through this dispatcher. Used for notifications.
	OnTerminal func(job Job)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var defaultFormats = []string{"txt", "srt"}

// NewDispatcher creates a dispatcher writing rendered outputs to outputDir.
func NewDispatcher(store *Store, engines *engine.Registry, outputDir string) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:     store,
		engines:   engines,
		outputDir: outputDir,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Dispatch validates the request, creates the job record, and schedules the
// work. Returns the job id immediately without waiting for completion.
func (d *Dispatcher) Dispatch(req Request) (string, error) {
	if !fileops.IsAudioFile(req.Path) {
		return "", NewValidationError("unsupported format: %s", filepath.Ext(req.Path))
	}

	formats := req.Formats
	if len(formats) == 0 {
		formats = defaultFormats
	}
	for _, f := range formats {
		if !transcript.IsOutputFormat(f) {
			return "", NewValidationError("unknown output format: %s", f)
		}
	}
	req.Formats = formats

	if req.SourceName == "" {
		req.SourceName = filepath.Base(req.Path)
	}

	job := d.store.Create(req.SourceName, req.Formats)
	logger.Infof("job created: %s (%s)", job.ID, job.SourceName)

	d.wg.Add(1)
	go d.run(job.ID, req)

	return job.ID, nil
}

// Stop cancels the worker context and waits for in-flight jobs to unwind.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) run(id string, req Request) {
	defer d.wg.Done()

	// Scoped cleanup of the input artifact, exactly once on any exit path.
	if req.RemoveInput {
		defer func() {
			if err := fileops.Remove(req.Path); err != nil {
				logger.Debugf("job %s: input cleanup: %v", id, err)
			}
		}()
	}

	final, ok := d.execute(id, req)
	if ok {
		if d.OnTerminal != nil {
			d.OnTerminal(final)
		}
	}
	if req.OnDone != nil {
		req.OnDone(final)
	}
}

// execute runs the job to a terminal snapshot. ok is false when the job
// vanished before it produced any observable terminal state of its own.
func (d *Dispatcher) execute(id string, req Request) (final Job, ok bool) {
	if _, err := d.store.Update(id, func(j *Job) {
		j.Status = StatusProcessing
		j.Message = "Loading model..."
	}); err != nil {
		// Deleted (or cancelled) before the worker started.
		logger.Debugf("job %s: gone before start: %v", id, err)
		return cancelledSnapshot(id, req), false
	}

	updates := make(chan progressUpdate, 64)
	drained := make(chan struct{})
	go d.drainProgress(id, updates, drained)

	eng, err := d.engines.Get(req.Model)
	if err != nil {
		close(updates)
		<-drained
		return d.fail(id, req, err)
	}

	opts := engine.Options{Language: req.Language, Model: req.Model}
	result, engErr := eng.Transcribe(d.ctx, req.Path, opts, func(fraction float64, message string) {
		// Never block the worker: drop the update when the drainer lags.
		select {
		case updates <- progressUpdate{fraction: fraction, message: message}:
		default:
		}
	})

	close(updates)
	<-drained

	if engErr != nil {
		return d.fail(id, req, engErr)
	}

	// A worker returning into a deleted job discards its result rather than
	// resurrecting state.
	if _, err := d.store.Get(id); err != nil {
		logger.Infof("job %s: cancelled during transcription, result discarded", id)
		return cancelledSnapshot(id, req), false
	}

	stem := fileops.Stem(req.SourceName)
	if _, err := result.WriteOutputs(d.outputDir, stem, req.Formats); err != nil {
		return d.fail(id, req, err)
	}

	final, err = d.store.Update(id, func(j *Job) {
		now := time.Now()
		j.Status = StatusCompleted
		j.Progress = 1.0
		j.Message = "Complete"
		j.CompletedAt = &now
		j.Result = result
	})
	if err != nil {
		logger.Debugf("job %s: completion discarded: %v", id, err)
		return cancelledSnapshot(id, req), false
	}

	logger.Infof("job completed: %s (%s)", id, req.SourceName)
	return final, true
}

// drainProgress applies progress updates to the store in arrival order,
// keeping progress monotonic while the job is processing.
func (d *Dispatcher) drainProgress(id string, updates <-chan progressUpdate, done chan<- struct{}) {
	defer close(done)

	for u := range updates {
		_, err := d.store.Update(id, func(j *Job) {
			if j.Status != StatusProcessing {
				return
			}
			if u.fraction > j.Progress && u.fraction <= 1.0 {
				j.Progress = u.fraction
			}
			if u.message != "" {
				j.Message = u.message
			}
		})
		if err != nil && !errors.Is(err, ErrTerminalState) && !errors.Is(err, ErrNotFound) {
			logger.Warnf("job %s: progress update: %v", id, err)
		}
	}
}

func (d *Dispatcher) fail(id string, req Request, cause error) (Job, bool) {
	final, err := d.store.Update(id, func(j *Job) {
		now := time.Now()
		j.Status = StatusFailed
		j.Error = cause.Error()
		j.Message = "Error: " + cause.Error()
		j.CompletedAt = &now
	})
	if err != nil {
		logger.Debugf("job %s: failure discarded: %v", id, err)
		return cancelledSnapshot(id, req), false
	}

	logger.Errorf("job failed: %s (%s): %v", id, req.SourceName, cause)
	return final, true
}

// cancelledSnapshot synthesizes a terminal view for OnDone callers when the
// canonical record was already removed from the store.
func cancelledSnapshot(id string, req Request) Job {
	now := time.Now()
	return Job{
		ID:          id,
		SourceName:  req.SourceName,
		Status:      StatusCancelled,
		Message:     "Cancelled",
		CompletedAt: &now,
		Formats:     append([]string(nil), req.Formats...),
	}
}
