package backend

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quayside-run/durabletask/backend/metrics"
)

// TaskProcessor is the per-work-item-kind hook a TaskWorker drives: one
// implementation for orchestration work items (orchestration.go) and one
// for activity work items. Mirrors the method set orchestration.go's
// orchestratorProcessor already implements.
type TaskProcessor interface {
	Name() string
	FetchWorkItem(ctx context.Context) (WorkItem, error)
	ProcessWorkItem(ctx context.Context, wi WorkItem) error
	CompleteWorkItem(ctx context.Context, wi WorkItem) error
	AbandonWorkItem(ctx context.Context, wi WorkItem) error
}

// TaskWorker polls a Backend for work items of one kind and drives them
// through a TaskProcessor, in a bounded pool of concurrent poll loops.
type TaskWorker interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// TaskWorkerOptions configures a taskWorker at construction time.
type TaskWorkerOptions struct {
	// MaxParallelism bounds how many work items this worker processes
	// concurrently.
	MaxParallelism int
	// PollRate caps how many FetchWorkItem calls per second this worker's
	// poll goroutines issue while idle, taken together (they share one
	// limiter), so an empty queue doesn't spin the backend.
	PollRate rate.Limit
	// Recorder receives per-work-item instrumentation. Defaults to
	// metrics.NoopRecorder{}.
	Recorder metrics.Recorder
}

// NewTaskWorkerOptions mutates a TaskWorkerOptions before construction,
// mirroring the variadic functional-option convention already used by
// api.NewOrchestrationOptions.
type NewTaskWorkerOptions func(opts *TaskWorkerOptions)

func WithMaxParallelism(n int) NewTaskWorkerOptions {
	return func(opts *TaskWorkerOptions) { opts.MaxParallelism = n }
}

func WithPollRate(r rate.Limit) NewTaskWorkerOptions {
	return func(opts *TaskWorkerOptions) { opts.PollRate = r }
}

// WithRecorder attaches a metrics.Recorder to report work-item throughput,
// latency, failures, and abandon counts.
func WithRecorder(r metrics.Recorder) NewTaskWorkerOptions {
	return func(opts *TaskWorkerOptions) { opts.Recorder = r }
}

func defaultTaskWorkerOptions() TaskWorkerOptions {
	return TaskWorkerOptions{MaxParallelism: 1, PollRate: 10, Recorder: metrics.NoopRecorder{}}
}

type taskWorker struct {
	be        Backend
	processor TaskProcessor
	logger    Logger
	opts      TaskWorkerOptions

	limiter *rate.Limiter

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTaskWorker builds a TaskWorker that polls be via processor.FetchWorkItem
// and drives each item through processor.ProcessWorkItem, completing or
// abandoning it according to whether processing succeeded.
func NewTaskWorker(be Backend, processor TaskProcessor, logger Logger, opts ...NewTaskWorkerOptions) TaskWorker {
	cfg := defaultTaskWorkerOptions()
	for _, configure := range opts {
		configure(&cfg)
	}
	return &taskWorker{
		be:        be,
		processor: processor,
		logger:    logger,
		opts:      cfg,
		limiter:   rate.NewLimiter(cfg.PollRate, 1),
	}
}

func (w *taskWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	for i := 0; i < w.opts.MaxParallelism; i++ {
		w.wg.Add(1)
		go w.pollLoop(runCtx)
	}
}

func (w *taskWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *taskWorker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		if err := ctx.Err(); err != nil {
			return
		}

		wi, err := w.processor.FetchWorkItem(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warnf("%s: failed to fetch work item: %v", w.processor.Name(), err)
			_ = w.limiter.Wait(ctx)
			continue
		}
		if wi == nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
			continue
		}

		w.opts.Recorder.WorkItemFetched(w.processor.Name())
		w.handle(ctx, wi)
	}
}

func (w *taskWorker) handle(ctx context.Context, wi WorkItem) {
	start := time.Now()
	name := w.processor.Name()
	if err := w.processor.ProcessWorkItem(ctx, wi); err != nil {
		w.logger.Errorf("%s: failed to process work item %v: %v", name, wi, err)
		w.opts.Recorder.WorkItemFailed(name)
		if abandonErr := w.processor.AbandonWorkItem(ctx, wi); abandonErr != nil {
			w.logger.Errorf("%s: failed to abandon work item %v: %v", name, wi, abandonErr)
		}
		w.opts.Recorder.WorkItemAbandoned(name)
		return
	}
	if err := w.processor.CompleteWorkItem(ctx, wi); err != nil {
		w.logger.Errorf("%s: failed to complete work item %v: %v", name, wi, err)
		return
	}
	w.opts.Recorder.WorkItemProcessed(name, time.Since(start))
	w.logger.Debugf("%s: processed work item %v in %s", name, wi, time.Since(start))
}
