package backend

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stringWorkItem string

func (s stringWorkItem) String() string { return string(s) }

// fakeProcessor hands out a fixed number of work items then reports an
// empty queue forever, so TaskWorker.Start/Stop can be exercised
// deterministically in a bounded test.
type fakeProcessor struct {
	mu        sync.Mutex
	remaining int
	processed int32
	completed int32
	abandoned int32
	failNext  bool
}

func (p *fakeProcessor) Name() string { return "fake-processor" }

func (p *fakeProcessor) FetchWorkItem(ctx context.Context) (WorkItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remaining <= 0 {
		return nil, nil
	}
	p.remaining--
	return stringWorkItem(fmt.Sprintf("item-%d", p.remaining)), nil
}

func (p *fakeProcessor) ProcessWorkItem(ctx context.Context, wi WorkItem) error {
	atomic.AddInt32(&p.processed, 1)
	p.mu.Lock()
	fail := p.failNext
	p.failNext = false
	p.mu.Unlock()
	if fail {
		return fmt.Errorf("boom")
	}
	return nil
}

func (p *fakeProcessor) CompleteWorkItem(ctx context.Context, wi WorkItem) error {
	atomic.AddInt32(&p.completed, 1)
	return nil
}

func (p *fakeProcessor) AbandonWorkItem(ctx context.Context, wi WorkItem) error {
	atomic.AddInt32(&p.abandoned, 1)
	return nil
}

func TestTaskWorker_ProcessesAllAvailableWorkItems(t *testing.T) {
	processor := &fakeProcessor{remaining: 5}
	worker := NewTaskWorker(nil, processor, newLoggerStub(), WithMaxParallelism(2), WithPollRate(1000))

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&processor.completed) == 5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, worker.Stop(context.Background()))
}

func TestTaskWorker_AbandonsFailedWorkItem(t *testing.T) {
	processor := &fakeProcessor{remaining: 1, failNext: true}
	worker := NewTaskWorker(nil, processor, newLoggerStub(), WithMaxParallelism(1), WithPollRate(1000))

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&processor.abandoned) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, worker.Stop(context.Background()))
	require.Equal(t, int32(0), atomic.LoadInt32(&processor.completed))
}

func TestGetAbandonDelay_ZeroRetriesHasNoDelay(t *testing.T) {
	require.Equal(t, time.Duration(0), GetAbandonDelay(0))
}
