package jobs

import (
	"context"
	"log"
	"time"
)

// JobProcessor runs one pass of periodic background work
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker calls a JobProcessor on a fixed interval until stopped
type Worker struct {
	name         string
	processor    JobProcessor
	pollInterval time.Duration
	runOnStart   bool
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// Option configures a Worker
type Option func(*Worker)

// WithName labels the worker in log lines.
func WithName(name string) Option {
	return func(w *Worker) { w.name = name }
}

// WithRunOnStart makes the worker process once before the first tick.
func WithRunOnStart() Option {
	return func(w *Worker) { w.runOnStart = true }
}

// NewWorker creates a new Worker instance
func NewWorker(processor JobProcessor, pollInterval time.Duration, opts ...Option) *Worker {
	w := &Worker{
		name:         "worker",
		processor:    processor,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start blocks running the polling loop until ctx is done or Stop is called
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("%s started with poll interval: %v", w.name, w.pollInterval)

	if w.runOnStart {
		w.runOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s stopped: context cancelled", w.name)
			return
		case <-w.stopChan:
			log.Printf("%s stopped: stop signal received", w.name)
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Printf("%s: error processing jobs: %v", w.name, err)
	}
}

// Stop signals the loop and waits for it to exit. Safe to call after the
// context has already been cancelled.
func (w *Worker) Stop() {
	select {
	case <-w.stopChan:
	default:
		close(w.stopChan)
	}
	<-w.doneChan
	log.Printf("%s shutdown complete", w.name)
}
