package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

type recordingProcessor struct {
	mu       sync.Mutex
	runIDs   []string
	deadline bool
	done     chan struct{}
}

func newRecordingProcessor(expect int) *recordingProcessor {
	return &recordingProcessor{done: make(chan struct{}, expect)}
}

func (p *recordingProcessor) ProcessRun(ctx context.Context, run *domain.ProcessedRun) {
	p.mu.Lock()
	p.runIDs = append(p.runIDs, run.RunID)
	_, p.deadline = ctx.Deadline()
	p.mu.Unlock()
	p.done <- struct{}{}
}

func waitFor(t *testing.T, done chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for run %d of %d", i+1, n)
		}
	}
}

func TestQueueProcessesInOrder(t *testing.T) {
	processor := newRecordingProcessor(3)
	q := NewQueue(processor, 8, time.Minute, logger.NewNop())
	q.Start()
	defer q.Stop()

	for _, id := range []string{"run-1", "run-2", "run-3"} {
		require.True(t, q.Enqueue(&domain.ProcessedRun{RunID: id}))
	}
	waitFor(t, processor.done, 3)

	processor.mu.Lock()
	defer processor.mu.Unlock()
	assert.Equal(t, []string{"run-1", "run-2", "run-3"}, processor.runIDs)
	assert.True(t, processor.deadline, "runs get a bounded processing context")
}

func TestQueueRejectsWhenFull(t *testing.T) {
	// Not started: nothing drains the channel.
	q := NewQueue(newRecordingProcessor(0), 1, time.Minute, logger.NewNop())

	assert.True(t, q.Enqueue(&domain.ProcessedRun{RunID: "run-1"}))
	assert.False(t, q.Enqueue(&domain.ProcessedRun{RunID: "run-2"}))
	assert.Equal(t, 1, q.Len())
}

func TestQueueStopIsIdempotent(t *testing.T) {
	q := NewQueue(newRecordingProcessor(0), 1, time.Minute, logger.NewNop())
	q.Start()
	q.Stop()
	q.Stop()
}
