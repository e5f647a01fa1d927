// Package branch implements the work-branch: the per-pool worker lifecycle
// machine at the core of this thread-pool library. A WorkBranch owns a
// dynamic set of worker goroutines dequeuing from one
// TaskQueue, and supports graceful growth, cooperative shrink, a two-phase
// quiesce-and-resume barrier, and destructor-safe shutdown.
package branch

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Option configures a WorkBranch at construction time.
type Option func(*options)

type options struct {
	name         string
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler
}

// WithName sets the branch's display name, used in logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger overrides the default no-op Logger.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics overrides the default no-op Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithPanicHandler overrides the default logging PanicHandler.
func WithPanicHandler(h PanicHandler) Option {
	return func(o *options) { o.panicHandler = h }
}

// WorkBranch is a pool: N worker goroutines dequeuing from one TaskQueue.
// One mutex guards every coordination field; four condition variables
// (bound to that mutex) coordinate four distinct wait purposes: worker
// idle under BLOCKING, quiesce phase 1, quiesce phase 2, and
// destructor/retirement.
type WorkBranch struct {
	name         string
	strategy     WaitStrategy
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler

	queue      *TaskQueue
	queueDepth atomic.Int32 // mirrors queue.Len(); checked by idle() under the branch mutex so the queue mutex is never taken inside it

	mu          sync.Mutex
	idleCond    *sync.Cond // BLOCKING worker park
	quiesceCond *sync.Cond // wait_tasks phase 1 (task_done_workers)
	resumeCond  *sync.Cond // wait_tasks phase 2 (resume + waiting_finished_worker)
	retireCond  *sync.Cond // destructor waiting on decline == 0

	workers      map[int]struct{}
	nextWorkerID int

	decline               int
	taskDoneWorkers       int
	waitingFinishedWorker int
	isWaiting             bool
	destructing           bool
	closed                bool

	wg sync.WaitGroup
}

// New creates a WorkBranch with max(initialWorkers, 1) workers using the
// given strategy. Strategy is immutable for the branch's life.
func New(initialWorkers int, strategy WaitStrategy, opts ...Option) *WorkBranch {
	if initialWorkers < 1 {
		initialWorkers = 1
	}

	o := options{
		name:    "branch",
		logger:  NoOpLogger{},
		metrics: NilMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.panicHandler == nil {
		o.panicHandler = loggingPanicHandler{name: o.name, log: o.logger}
	}

	b := &WorkBranch{
		name:         o.name,
		strategy:     strategy,
		logger:       o.logger,
		metrics:      o.metrics,
		panicHandler: o.panicHandler,
		queue:        NewTaskQueue(),
		workers:      make(map[int]struct{}, initialWorkers),
	}
	b.idleCond = sync.NewCond(&b.mu)
	b.quiesceCond = sync.NewCond(&b.mu)
	b.resumeCond = sync.NewCond(&b.mu)
	b.retireCond = sync.NewCond(&b.mu)

	for i := 0; i < initialWorkers; i++ {
		b.addWorkerLocked()
	}
	return b
}

// AddWorker spawns one worker and inserts it keyed by its assigned ID.
func (b *WorkBranch) AddWorker() {
	b.mu.Lock()
	b.addWorkerLocked()
	b.mu.Unlock()
}

func (b *WorkBranch) addWorkerLocked() {
	id := b.nextWorkerID
	b.nextWorkerID++
	b.workers[id] = struct{}{}
	b.wg.Add(1)
	go b.missionLoop(id)
	b.metrics.RecordWorkerCount(b.name, len(b.workers))
}

// DelWorker increments the outstanding retirement request count. It fails
// with ErrEmptyPool if the branch currently has no workers, and does not
// wait for the retirement to actually happen.
func (b *WorkBranch) DelWorker() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.workers) == 0 {
		return ErrEmptyPool
	}
	b.decline++
	if b.strategy == Blocking {
		b.idleCond.Signal()
	}
	return nil
}

// NumWorkers returns a snapshot of the alive worker count.
func (b *WorkBranch) NumWorkers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.workers)
}

// NumTasks returns the queue length.
func (b *WorkBranch) NumTasks() int {
	return b.queue.Len()
}

// Stats returns a point-in-time observability snapshot.
func (b *WorkBranch) Stats() Stats {
	b.mu.Lock()
	s := Stats{Workers: len(b.workers), Waiting: b.isWaiting}
	b.mu.Unlock()
	s.Queued = b.queue.Len()
	return s
}

// Submit enqueues fn per the placement rules of class: NORMAL at the back,
// URGENT at the front. Use SubmitSequence for the SEQUENCE class.
func (b *WorkBranch) Submit(class TaskClass, fn Task) error {
	if fn == nil {
		return ErrBadInvocation
	}
	if class == Sequence {
		return b.SubmitSequence(fn)
	}
	return b.submit(singleItem(class, fn), class)
}

// SubmitSequence packages fns as one SEQUENCE task item: all members
// execute in submission order on a single worker without interleaving any
// other task between them.
func (b *WorkBranch) SubmitSequence(fns ...Task) error {
	if len(fns) == 0 {
		return ErrBadInvocation
	}
	group := make([]Task, len(fns))
	for i, f := range fns {
		if f == nil {
			return ErrBadInvocation
		}
		group[i] = f
	}
	return b.submit(sequenceItem(group), Sequence)
}

func (b *WorkBranch) submit(it item, class TaskClass) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	switch class {
	case Urgent:
		b.queue.PushFront(it)
	default:
		b.queue.PushBack(it)
	}
	b.queueDepth.Add(1)
	b.metrics.RecordQueueDepth(b.name, b.queue.Len())

	if b.strategy == Blocking {
		b.mu.Lock()
		b.idleCond.Broadcast()
		b.mu.Unlock()
	}
	return nil
}

// WaitTasks is a two-phase quiesce-and-resume barrier. Phase 1 waits (up
// to timeout) for every worker to observe the queue empty; phase 2 lets
// them resume. It returns whether phase 1 completed within the timeout.
func (b *WorkBranch) WaitTasks(timeout time.Duration) bool {
	b.mu.Lock()
	// Workers released by an earlier timed-out round bump
	// waitingFinishedWorker after that round has returned; discard those
	// increments so phase 2 below counts only this round's resumes.
	b.waitingFinishedWorker = 0
	b.isWaiting = true
	b.idleCond.Broadcast()

	quiesced := b.waitTimeoutLocked(b.quiesceCond, timeout, func() bool {
		return b.taskDoneWorkers >= len(b.workers)
	})
	b.taskDoneWorkers = 0
	b.isWaiting = false

	if !quiesced {
		// Wake anything parked on the now-cleared is_waiting flag so
		// normal processing resumes even though the barrier failed.
		b.resumeCond.Broadcast()
		b.idleCond.Broadcast()
		b.mu.Unlock()
		return false
	}

	b.resumeCond.Broadcast()
	for b.waitingFinishedWorker < len(b.workers) {
		b.resumeCond.Wait()
	}
	b.waitingFinishedWorker = 0
	b.mu.Unlock()
	return true
}

// waitTimeoutLocked waits on cond (whose Locker is b.mu, already held by
// the caller) until pred() is true or timeout elapses. timeout <= 0 means
// "don't block": return pred()'s current value immediately.
func (b *WorkBranch) waitTimeoutLocked(cond *sync.Cond, timeout time.Duration, pred func() bool) bool {
	if pred() {
		return true
	}
	if timeout <= 0 {
		return false
	}

	timedOut := false
	timer := time.AfterFunc(timeout, func() {
		b.mu.Lock()
		timedOut = true
		cond.Broadcast()
		b.mu.Unlock()
	})
	defer timer.Stop()

	for !pred() {
		if timedOut {
			return false
		}
		cond.Wait()
	}
	return true
}

// Close is the destructor-safe shutdown: it requests every worker retire,
// waits for all of them to acknowledge, and drops (never
// executes) anything left in the queue. After Close returns, no worker
// goroutine spawned by this branch remains alive.
func (b *WorkBranch) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.destructing = true
	b.decline = len(b.workers)
	b.idleCond.Broadcast()
	for b.decline > 0 {
		b.retireCond.Wait()
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.queue.Clear()
	return nil
}

// missionLoop is the worker state machine, evaluated in precedence order
// every iteration: EXECUTING, RETIRING, QUIESCING, IDLE.
func (b *WorkBranch) missionLoop(id int) {
	defer b.wg.Done()
	spins := 0

	for {
		// EXECUTING
		b.mu.Lock()
		mayRun := b.decline == 0
		b.mu.Unlock()

		if mayRun {
			if it, ok := b.queue.TryPop(); ok {
				b.queueDepth.Add(-1)
				b.runItem(id, it)
				spins = 0
				continue
			}
		}

		// RETIRING
		b.mu.Lock()
		if b.decline > 0 {
			b.decline--
			delete(b.workers, id)
			if b.isWaiting {
				b.taskDoneWorkers++
				b.quiesceCond.Broadcast()
			}
			if b.destructing {
				b.retireCond.Broadcast()
			}
			b.metrics.RecordWorkerCount(b.name, len(b.workers))
			b.mu.Unlock()
			return
		}

		// QUIESCING
		if b.isWaiting {
			b.taskDoneWorkers++
			b.quiesceCond.Broadcast()
			for b.isWaiting {
				b.resumeCond.Wait()
			}
			b.waitingFinishedWorker++
			b.resumeCond.Broadcast()
			b.mu.Unlock()
			continue
		}
		b.mu.Unlock()

		// IDLE
		spins = b.idle(spins)
	}
}

func (b *WorkBranch) idle(spins int) int {
	switch b.strategy {
	case LowLatency:
		runtime.Gosched()
		return 0

	case Balance:
		if spins < maxSpin {
			runtime.Gosched()
			return spins + 1
		}
		time.Sleep(time.Nanosecond)
		return spins

	case Blocking:
		b.mu.Lock()
		for b.queueDepth.Load() == 0 && !b.isWaiting && !b.destructing && b.decline == 0 {
			b.idleCond.Wait()
		}
		b.mu.Unlock()
		return 0

	default:
		runtime.Gosched()
		return 0
	}
}

func (b *WorkBranch) runItem(workerID int, it item) {
	start := time.Now()
	var panicked bool
	if it.class == Sequence {
		panicked, _ = runSequenceProtected(workerID, it.tasks, b.panicHandler)
	} else {
		panicked, _ = runProtected(workerID, it.class, it.tasks[0], b.panicHandler)
	}
	b.metrics.RecordTaskDuration(b.name, it.class, time.Since(start))
	if panicked {
		b.metrics.RecordTaskPanic(b.name, it.class)
	}
	b.metrics.RecordQueueDepth(b.name, b.queue.Len())
}
