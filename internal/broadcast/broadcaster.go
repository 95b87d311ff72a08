package broadcast

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/audioscribe/internal/jobs"
	"github.com/audioscribe/pkg/logger"
)

// PollInterval is the cadence for re-pushing processing jobs so late
// subscribers catch up on work already in flight.
const PollInterval = 500 * time.Millisecond

// subscriberBuffer bounds per-subscriber queues. A subscriber that falls
// this far behind loses intermediate progress snapshots, never the
// broadcaster's liveness.
const subscriberBuffer = 16

// Subscriber receives job snapshots until unsubscribed.
type Subscriber struct {
	id uint64
	ch chan jobs.Job
}

// Updates returns the snapshot stream for this subscriber.
func (s *Subscriber) Updates() <-chan jobs.Job {
	return s.ch
}

// Hub fans job-state snapshots out to observers. Pushes never block the
// store mutation that triggered them, and a slow or dead observer never
// stalls the others.
type Hub struct {
	store *jobs.Store

	mu     sync.Mutex
	subs   map[uint64]*Subscriber
	nextID uint64

	// limiter coalesces bursts of progress snapshots; terminal snapshots
	// always go through.
	limiter *rate.Limiter

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub creates a hub reading processing-job snapshots from store.
func NewHub(store *jobs.Store) *Hub {
	return &Hub{
		store:   store,
		subs:    make(map[uint64]*Subscriber),
		limiter: rate.NewLimiter(rate.Limit(50), 100),
		stop:    make(chan struct{}),
	}
}

// Start launches the polling loop for late subscribers.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.pollLoop()
	logger.Info("broadcaster started")
}

// Stop terminates the polling loop and drops all subscribers.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.wg.Wait()

		h.mu.Lock()
		for id, sub := range h.subs {
			close(sub.ch)
			delete(h.subs, id)
		}
		h.mu.Unlock()
	})
}

// Subscribe registers a new observer.
func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscriber{id: h.nextID, ch: make(chan jobs.Job, subscriberBuffer)}
	h.subs[sub.id] = sub

	logger.Debugf("broadcaster: subscriber %d joined (%d total)", sub.id, len(h.subs))
	return sub
}

// Unsubscribe removes the observer and closes its stream. Safe to call
// more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub.id]; ok {
		delete(h.subs, sub.id)
		close(sub.ch)
		logger.Debugf("broadcaster: subscriber %d left (%d total)", sub.id, len(h.subs))
	}
}

// Publish pushes one snapshot to every live subscriber. Wired as the job
// store's mutation listener; must never block or fail upward.
func (h *Hub) Publish(job jobs.Job) {
	if !job.Status.Terminal() && !h.limiter.Allow() {
		// Progress burst beyond the cap: the polling loop re-delivers
		// current state shortly anyway.
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		select {
		case sub.ch <- job:
		default:
			// Subscriber lagging: drop this snapshot for them.
		}
	}
}

// SubscriberCount reports the current number of observers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// pollLoop re-pushes every processing job on a fixed cadence so observers
// that subscribed mid-job still see it.
func (h *Hub) pollLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			if h.SubscriberCount() == 0 {
				continue
			}
			for _, job := range h.store.List() {
				if job.Status == jobs.StatusProcessing {
					h.Publish(job)
				}
			}
		}
	}
}
