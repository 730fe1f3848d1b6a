// Package worker decouples webhook acceptance from run processing: the
// handler enqueues and returns immediately, a background goroutine drains
// the queue one run at a time.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

// RunProcessor consumes one queued run. It must not return: failures end in
// logs, alerts, and the run row.
type RunProcessor interface {
	ProcessRun(ctx context.Context, run *domain.ProcessedRun)
}

// Queue is a channel-backed run queue with a single consumer goroutine.
// Runs are processed strictly in arrival order.
type Queue struct {
	runs       chan *domain.ProcessedRun
	processor  RunProcessor
	log        logger.Logger
	runTimeout time.Duration
	wg         sync.WaitGroup
	stop       chan struct{}
	once       sync.Once
}

// NewQueue creates a queue with the given channel capacity and per-run
// processing timeout.
func NewQueue(processor RunProcessor, capacity int, runTimeout time.Duration, log logger.Logger) *Queue {
	return &Queue{
		runs:       make(chan *domain.ProcessedRun, capacity),
		processor:  processor,
		log:        log,
		runTimeout: runTimeout,
		stop:       make(chan struct{}),
	}
}

// Enqueue performs a non-blocking hand-off of a run to the worker. It
// returns false when the queue is full; the caller decides whether that is
// backpressure or data loss.
func (q *Queue) Enqueue(run *domain.ProcessedRun) bool {
	select {
	case q.runs <- run:
		return true
	default:
		return false
	}
}

// Len returns the number of runs currently waiting.
func (q *Queue) Len() int {
	return len(q.runs)
}

// Start launches the consumer goroutine.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.loop()
}

// Stop drains nothing: runs still queued stay unfinished in the database
// and are picked up by the retry sweep after restart. It is safe to call
// multiple times.
func (q *Queue) Stop() {
	q.once.Do(func() {
		close(q.stop)
	})
	q.wg.Wait()
}

func (q *Queue) loop() {
	defer q.wg.Done()

	for {
		select {
		case <-q.stop:
			return
		case run := <-q.runs:
			q.process(run)
		}
	}
}

func (q *Queue) process(run *domain.ProcessedRun) {
	ctx, cancel := context.WithTimeout(context.Background(), q.runTimeout)
	defer cancel()

	q.log.Info("Processing run",
		logger.String("run_id", run.RunID),
		logger.Int("queued", len(q.runs)),
	)
	q.processor.ProcessRun(ctx, run)
}
