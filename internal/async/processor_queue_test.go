package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exams-tracker/internal/services/intake"
)

type fakeProcessor struct {
	mu       sync.Mutex
	seen     []string
	inflight atomic.Int32
	maxSeen  atomic.Int32
	block    chan struct{}
}

func (f *fakeProcessor) ProcessPath(ctx context.Context, path, _, _ string) (*intake.Outcome, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.seen = append(f.seen, path)
	f.mu.Unlock()
	if path == "bad.pdf" {
		return nil, errors.New("boom")
	}
	return &intake.Outcome{Protocol: "P-" + path}, nil
}

func TestProcessorQueueProcessesAllJobs(t *testing.T) {
	proc := &fakeProcessor{}
	results := make(chan Result, 10)
	q := NewProcessorQueue(proc, nil, WithWorkers(3), WithResults(results))

	paths := []string{"a.pdf", "b.png", "bad.pdf", "c.jpg"}
	for _, p := range paths {
		require.NoError(t, q.Enqueue(context.Background(), Job{Path: p}))
	}
	q.Shutdown(context.Background())
	close(results)

	got := map[string]Result{}
	for r := range results {
		got[r.Job.Path] = r
		assert.False(t, r.Job.SubmittedAt.IsZero())
	}
	require.Len(t, got, len(paths))
	assert.Equal(t, "P-a.pdf", got["a.pdf"].Outcome.Protocol)
	assert.Error(t, got["bad.pdf"].Err)
	assert.Nil(t, got["bad.pdf"].Outcome)
	assert.LessOrEqual(t, proc.maxSeen.Load(), int32(3))
}

func TestProcessorQueueRejectsAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(&fakeProcessor{}, nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{Path: "late.pdf"})
	require.ErrorIs(t, err, ErrQueueClosed)
}

func TestProcessorQueueBackpressureHonorsContext(t *testing.T) {
	proc := &fakeProcessor{block: make(chan struct{})}
	q := NewProcessorQueue(proc, nil, WithWorkers(1), WithQueueSize(1))

	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "first.pdf"}))
	// Wait for the worker to pick up the first job so the buffer is empty.
	require.Eventually(t, func() bool { return proc.inflight.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "second.pdf"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, Job{Path: "third.pdf"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(proc.block)
	q.Shutdown(context.Background())
	assert.ElementsMatch(t, []string{"first.pdf", "second.pdf"}, proc.seen)
}

func TestProcessorQueueTimeout(t *testing.T) {
	proc := &fakeProcessor{block: make(chan struct{})}
	results := make(chan Result, 1)
	q := NewProcessorQueue(proc, nil, WithWorkers(1), WithProcessTimeout(10*time.Millisecond), WithResults(results))

	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "slow.pdf"}))
	r := <-results
	require.ErrorIs(t, r.Err, context.DeadlineExceeded)
	q.Shutdown(context.Background())
}
