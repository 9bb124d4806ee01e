package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/recall/rag"
	"github.com/poiesic/recall/storage"
)

// Worker is the background scheduler that keeps busy contexts indexed. It
// decides when and how much to index; the data work itself is delegated to
// the rag.Service.
//
// The design assumes a single active worker per deployment. The in-memory
// processing set guarantees at most one concurrent indexing operation per
// context within this process, but provides no coordination across
// replicas.
type Worker struct {
	service *rag.Service
	store   storage.MessageStore
	pool    *ants.Pool
	clock   Clock
	logger  *slog.Logger

	mu         sync.Mutex
	config     Config
	stats      Stats
	processing map[string]struct{}
	running    bool
	stopCh     chan struct{}
	loopDone   chan struct{}

	// cycleActive prevents overlapping cycles. It is a coarse guard, not a
	// queue: a skipped cycle is lost, not deferred.
	cycleActive atomic.Bool
}

// Option configures a Worker.
type Option func(*Worker) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// WithConfig overrides the default configuration.
func WithConfig(config Config) Option {
	return func(w *Worker) error {
		if err := config.Validate(); err != nil {
			return err
		}
		w.config = config
		return nil
	}
}

// WithClock sets a custom clock, used by tests to run cycles without real
// timers.
func WithClock(clock Clock) Option {
	return func(w *Worker) error {
		if clock != nil {
			w.clock = clock
		}
		return nil
	}
}

// WithPoolSize sets the worker pool size for per-context processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(w *Worker) error {
		if size < 1 {
			size = 1
		}
		if w.pool != nil {
			w.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		w.pool = pool
		return nil
	}
}

// NewWorker creates a new embedding worker.
func NewWorker(service *rag.Service, store storage.MessageStore, opts ...Option) (*Worker, error) {
	if service == nil {
		return nil, ErrServiceRequired
	}
	if store == nil {
		return nil, ErrMessageStoreRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		service:    service,
		store:      store,
		pool:       pool,
		clock:      systemClock{},
		logger:     slog.Default(),
		config:     DefaultConfig(),
		processing: make(map[string]struct{}),
	}

	for _, opt := range opts {
		if err := opt(w); err != nil {
			w.pool.Release()
			return nil, err
		}
	}

	return w, nil
}

// Start arms the scheduler: one cycle fires immediately, then cycles fire on
// the configured interval. Calling Start on a running worker is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Warn("worker already running")
		return
	}
	w.running = true
	stopCh := make(chan struct{})
	done := make(chan struct{})
	w.stopCh = stopCh
	w.loopDone = done
	interval := w.config.Interval
	w.mu.Unlock()

	w.logger.Info("worker started", "interval", interval)
	go func() {
		defer close(done)
		w.loop(stopCh, interval)
	}()
}

func (w *Worker) loop(stopCh chan struct{}, interval time.Duration) {
	w.RunCycle(context.Background())

	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C():
			w.RunCycle(context.Background())
		}
	}
}

// Stop disarms the scheduler and blocks until the loop goroutine has exited.
// An in-flight cycle is allowed to finish, never interrupted, so callers may
// safely close the stores once Stop returns.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.logger.Warn("worker not running")
		return
	}
	w.running = false
	close(w.stopCh)
	w.stopCh = nil
	done := w.loopDone
	w.loopDone = nil
	w.mu.Unlock()

	<-done
	w.logger.Info("worker stopped")
}

// IsRunning reports whether the scheduler is armed.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Release stops the worker and releases its pool. The worker should not be
// used afterwards.
func (w *Worker) Release() {
	if w.IsRunning() {
		w.Stop()
	}
	w.pool.Release()
}

// RunCycle executes one scheduling cycle: query candidates, index up to
// BatchSize of them, record stats. If a previous cycle is still executing
// the invocation is skipped entirely, never queued. Errors never escape; a
// cycle-level failure is recorded in stats and logged.
func (w *Worker) RunCycle(ctx context.Context) {
	if !w.cycleActive.CompareAndSwap(false, true) {
		w.logger.Info("cycle skipped: previous cycle still running")
		return
	}
	defer w.cycleActive.Store(false)

	w.mu.Lock()
	w.stats.TotalRuns++
	config := w.config
	w.mu.Unlock()

	candidates, err := w.store.CandidateContexts(ctx, config.MessagesThreshold, config.BatchSize*2, config.RecencyWindow)
	if err != nil {
		w.recordCycleError(err)
		return
	}

	attempted := 0
	var wg sync.WaitGroup
	for _, contextID := range candidates {
		if attempted >= config.BatchSize {
			break
		}
		if !w.beginProcessing(contextID) {
			w.logger.Debug("skipping context: already being processed", "contextID", contextID)
			continue
		}
		attempted++

		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer w.endProcessing(contextID)
			w.processContext(ctx, contextID, config)
		}
		if err := w.pool.Submit(task); err != nil {
			// Pool rejected the task; run inline so cleanup still happens
			task()
		}
	}
	wg.Wait()

	w.mu.Lock()
	w.stats.SuccessfulRuns++
	w.stats.LastRun = w.clock.Now()
	w.mu.Unlock()

	w.logger.Info("worker cycle finished", "candidates", len(candidates), "attempted", attempted)
}

// processContext indexes one candidate. Failures are logged and absorbed:
// sibling contexts in the same cycle are unaffected.
func (w *Worker) processContext(ctx context.Context, contextID string, config Config) {
	var embedded int
	err := RetryWithBackoff(ctx, func() error {
		var opErr error
		embedded, opErr = w.service.ProcessUnembeddedMessages(ctx, contextID)
		return opErr
	}, config.MaxRetries, config.RetryBaseDelay, w.logger)

	w.mu.Lock()
	w.stats.ContextsProcessed++
	if err == nil {
		w.stats.MessagesEmbedded += int64(embedded)
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("context processing failed", "contextID", contextID, "err", err)
		return
	}
	if embedded > 0 {
		w.logger.Info("context indexed", "contextID", contextID, "messages", embedded)
	}
}

// ProcessContextNow triggers indexing for one context outside the schedule.
// Unlike the scheduled path, which silently skips busy contexts, a manual
// caller expects a definite outcome: if the context is already in the
// processing set this returns ErrAlreadyProcessing immediately.
// Returns the number of messages embedded.
func (w *Worker) ProcessContextNow(ctx context.Context, contextID string) (int, error) {
	if !w.beginProcessing(contextID) {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyProcessing, contextID)
	}
	defer w.endProcessing(contextID)

	return w.service.ProcessUnembeddedMessages(ctx, contextID)
}

// GetStats returns a snapshot of the worker's counters.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	stats := w.stats
	stats.Running = w.running
	return stats
}

// ResetStats zeroes the counters.
func (w *Worker) ResetStats() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats = Stats{}
}

// GetConfig returns a copy of the current configuration.
func (w *Worker) GetConfig() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config
}

// UpdateConfig replaces the configuration. Enabling a stopped worker starts
// it; disabling a running worker stops it. A changed Interval does not
// re-arm a running ticker; restart the worker for it to take effect.
func (w *Worker) UpdateConfig(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	wasEnabled := w.config.Enabled
	w.config = config
	w.mu.Unlock()

	switch {
	case config.Enabled && !wasEnabled:
		w.Start()
	case !config.Enabled && wasEnabled:
		if w.IsRunning() {
			w.Stop()
		}
	}
	return nil
}

// ProcessingQueue returns the context IDs currently being indexed, sorted.
func (w *Worker) ProcessingQueue() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	queue := make([]string, 0, len(w.processing))
	for contextID := range w.processing {
		queue = append(queue, contextID)
	}
	slices.Sort(queue)
	return queue
}

// beginProcessing adds a context to the processing set. Returns false if it
// is already present.
func (w *Worker) beginProcessing(contextID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.processing[contextID]; busy {
		return false
	}
	w.processing[contextID] = struct{}{}
	return true
}

// endProcessing removes a context from the processing set.
func (w *Worker) endProcessing(contextID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.processing, contextID)
}

// recordCycleError records a cycle-level failure in the stats.
func (w *Worker) recordCycleError(err error) {
	w.mu.Lock()
	w.stats.FailedRuns++
	w.stats.LastError = err.Error()
	w.stats.LastRun = w.clock.Now()
	w.mu.Unlock()

	w.logger.Error("worker cycle failed", "err", err)
}
