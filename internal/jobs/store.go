package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Listener receives a snapshot after every store mutation. Called outside
// the store lock; implementations must not call back into the store
// synchronously from the same goroutine if they take their own locks.
type Listener func(job Job)

// Store is the concurrency-safe registry of job records and the only
// component permitted to mutate a job after creation.
type Store struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	listener Listener
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// SetListener installs the mutation observer. Must be called before the
// store is shared across goroutines.
func (s *Store) SetListener(fn Listener) {
	s.listener = fn
}

// Create allocates a unique id and inserts a pending record.
func (s *Store) Create(sourceName string, formats []string) Job {
	job := &Job{
		ID:         uuid.New().String(),
		SourceName: sourceName,
		Status:     StatusPending,
		Progress:   0,
		CreatedAt:  time.Now(),
		Formats:    append([]string(nil), formats...),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	snap := job.snapshot()
	s.mu.Unlock()

	s.notify(snap)
	return snap
}

// Get returns a snapshot of the job, or ErrNotFound.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job.snapshot(), nil
}

// List returns snapshots of all jobs.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.snapshot())
	}
	return out
}

// Update applies fn to the record atomically and returns the new snapshot.
// Mutating a job that was deleted concurrently yields ErrNotFound; mutating
// a finished job yields ErrTerminalState with the record untouched. Both are
// accepted races for late progress callbacks, not user-facing faults.
func (s *Store) Update(id string, fn func(*Job)) (Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return Job{}, ErrNotFound
	}
	if job.Status.Terminal() {
		snap := job.snapshot()
		s.mu.Unlock()
		return snap, ErrTerminalState
	}

	fn(job)
	snap := job.snapshot()
	s.mu.Unlock()

	s.notify(snap)
	return snap, nil
}

// Delete removes the record. A job still in flight is first transitioned to
// cancelled (cooperative: the worker discovers the removal through
// ErrNotFound and discards its result). Returns the final snapshot.
func (s *Store) Delete(id string) (Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return Job{}, ErrNotFound
	}

	if !job.Status.Terminal() {
		now := time.Now()
		job.Status = StatusCancelled
		job.Message = "Cancelled"
		job.CompletedAt = &now
	}

	snap := job.snapshot()
	delete(s.jobs, id)
	s.mu.Unlock()

	s.notify(snap)
	return snap, nil
}

func (s *Store) notify(job Job) {
	if s.listener != nil {
		s.listener(job)
	}
}
