package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
)

// Sink delivers one event to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

type job struct {
	event Event
	log   *slog.Logger
}

// Dispatcher fans events out to every sink from a fixed worker pool.
// Notify never blocks the caller; when the buffer is full the event is
// dropped and logged.
type Dispatcher struct {
	sinks   []Sink
	jobs    chan job
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	onResult func(sink string, err error)
}

func NewDispatcher(bufferSize int, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Dispatcher{
		sinks:   sinks,
		jobs:    make(chan job, bufferSize),
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// OnResult registers a callback invoked after every delivery attempt.
func (d *Dispatcher) OnResult(fn func(sink string, err error)) {
	d.onResult = fn
}

func (d *Dispatcher) Start(workerCount int) {
	if workerCount < 1 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("notification dispatcher started", "workers", workerCount, "sinks", len(d.sinks))
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for j := range d.jobs {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			err := s.Send(ctx, j.event)
			cancel()

			if err != nil {
				j.log.Warn("notification delivery failed",
					"sink", s.Name(),
					"event_id", j.event.ID,
					"event_type", j.event.Type,
					"error", err,
				)
			}
			if d.onResult != nil {
				d.onResult(s.Name(), err)
			}
		}
	}
}

// Notify queues e for delivery, tagging it with the caller's request id.
// It reports whether the event was accepted.
func (d *Dispatcher) Notify(ctx context.Context, e Event) bool {
	log := loggerFrom(ctx, d.logger)
	if e.CorrelationID == "" {
		e.CorrelationID = logging.RequestID(ctx)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.Warn("notification dropped after shutdown", "event_type", e.Type)
		return false
	}

	select {
	case d.jobs <- job{event: e, log: log}:
		return true
	default:
		log.Warn("notification buffer full, event dropped",
			"event_id", e.ID,
			"event_type", e.Type,
		)
		return false
	}
}

// Shutdown stops accepting events and waits for queued ones to drain.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("notification dispatcher stopped")
}
