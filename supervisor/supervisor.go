// Package supervisor implements the auto-scaling control loop: it
// periodically observes queue depth versus worker count on each attached
// branch and issues scale-up/scale-down commands within configured
// bounds, using an asymmetric strategy (fast expansion, slow contraction)
// to avoid thrashing under bursty load.
package supervisor

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/branchpool/branchpool/branch"
)

// ErrBounds is the value New panics with when wmin < 0, wmax <= wmin or
// wmax == 0.
var ErrBounds = errors.New("supervisor: require wmax > wmin >= 0 and wmax > 0")

// Branch is the subset of *branch.WorkBranch the supervisor needs. Kept as
// an interface so tests can attach fakes without spinning up goroutines.
type Branch interface {
	NumTasks() int
	NumWorkers() int
	AddWorker()
	DelWorker() error
}

// TickEvent describes one supervisor decision for one attached branch,
// reported to the tick callback and the configured Logger.
type TickEvent struct {
	BranchID      string
	Tasks         int
	WorkersBefore int
	WorkersAfter  int
	Added         int
	Removed       int
}

// TickFunc is invoked once per tick, outside the supervisor lock, for
// every attached branch that had a non-empty decision this tick.
type TickFunc func(TickEvent)

// Option configures a Supervisor at construction time.
type Option func(*config)

type config struct {
	tick     time.Duration
	onTick   TickFunc
	logger   branch.Logger
	branches map[string]Branch
}

const defaultTick = 500 * time.Millisecond

// WithTick overrides the default 500ms tick period.
func WithTick(d time.Duration) Option {
	return func(c *config) { c.tick = d }
}

// WithTickCallback installs the initial per-tick callback.
func WithTickCallback(fn TickFunc) Option {
	return func(c *config) { c.onTick = fn }
}

// WithLogger overrides the default no-op Logger.
func WithLogger(l branch.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Supervisor is the background auto-scaling loop. It holds weak
// (non-owning) references to the branches it monitors: attach/detach never
// transfers branch ownership.
type Supervisor struct {
	wmin, wmax int

	mu       sync.Mutex
	tickBase time.Duration // the configured period, restored by Proceed
	tout     time.Duration // the effective sleep period; may be suspended (0 == infinite)
	branches map[string]Branch
	nextID   int
	onTick   TickFunc
	logger   branch.Logger

	stopping bool
	stopCh   chan struct{}
	wakeCh   chan struct{}
	done     chan struct{}
	once     sync.Once
}

// New creates a Supervisor bounded by [wmin, wmax] and starts its control
// loop goroutine immediately. Panics with ErrBounds if wmin < 0,
// wmax <= wmin or wmax == 0 — a construction-time contract violation,
// matching the teacher's practice of panicking on invalid runner
// configuration.
func New(wmin, wmax int, opts ...Option) *Supervisor {
	if wmin < 0 || wmax <= wmin || wmax == 0 {
		panic(ErrBounds)
	}

	c := config{tick: defaultTick, logger: branch.NoOpLogger{}}
	for _, opt := range opts {
		opt(&c)
	}

	s := &Supervisor{
		wmin:     wmin,
		wmax:     wmax,
		tickBase: c.tick,
		tout:     c.tick,
		branches: make(map[string]Branch),
		onTick:   c.onTick,
		logger:   c.logger,
		stopCh:   make(chan struct{}),
		wakeCh:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	go s.loop()
	return s
}

// Attach adds a weak reference to b for the supervisor to monitor and
// returns an opaque ID that Detach accepts.
func (s *Supervisor) Attach(b Branch) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := branchID(s.nextID)
	s.nextID++
	s.branches[id] = b
	return id
}

// Detach stops monitoring the branch identified by id.
func (s *Supervisor) Detach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.branches, id)
}

// Suspend sets the tick period to d and wakes the control loop, which runs
// one more tick before it starts waiting with the new period. d <= 0 means
// no tick after that one: scaling decisions stop, but already-running work
// is untouched.
func (s *Supervisor) Suspend(d time.Duration) {
	s.mu.Lock()
	s.tout = d
	s.mu.Unlock()
	s.wake()
}

// Proceed restores the tick period configured at construction (or via a
// prior WithTick), exactly undoing a Suspend.
func (s *Supervisor) Proceed() {
	s.mu.Lock()
	s.tout = s.tickBase
	s.mu.Unlock()
	s.wake()
}

// SetTickCallback replaces the per-tick callback.
func (s *Supervisor) SetTickCallback(fn TickFunc) {
	s.mu.Lock()
	s.onTick = fn
	s.mu.Unlock()
}

func (s *Supervisor) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Close stops the control loop and waits for it to exit. Safe to call more
// than once.
func (s *Supervisor) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()
		close(s.stopCh)
	})
	<-s.done
	return nil
}

func (s *Supervisor) loop() {
	defer close(s.done)
	for {
		events := s.tickOnce()
		for _, ev := range events {
			s.logger.Debug("supervisor tick",
				branch.F("branch", ev.BranchID),
				branch.F("tasks", ev.Tasks),
				branch.F("workers_before", ev.WorkersBefore),
				branch.F("workers_after", ev.WorkersAfter),
			)
		}

		s.mu.Lock()
		cb := s.onTick
		s.mu.Unlock()
		if cb != nil {
			for _, ev := range events {
				func() {
					// the control loop tolerates a failing callback
					defer func() {
						if r := recover(); r != nil {
							s.logger.Error("supervisor tick callback panicked",
								branch.F("branch", ev.BranchID),
								branch.F("panic", r),
							)
						}
					}()
					cb(ev)
				}()
			}
		}

		s.mu.Lock()
		wait := s.tout
		s.mu.Unlock()

		var timeout <-chan time.Time
		var timer *time.Timer
		if wait > 0 {
			timer = time.NewTimer(wait)
			timeout = timer.C
		}

		select {
		case <-s.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wakeCh:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}

		s.mu.Lock()
		stop := s.stopping
		s.mu.Unlock()
		if stop {
			return
		}
	}
}

// tickOnce runs one control-loop iteration: for each attached branch,
// scale up fast (bounded by backlog) or scale down slow (one worker per
// tick), then releases the lock before returning so the caller can
// invoke the tick callback outside it.
func (s *Supervisor) tickOnce() []TickEvent {
	s.mu.Lock()
	branches := make(map[string]Branch, len(s.branches))
	for id, b := range s.branches {
		branches[id] = b
	}
	wmin, wmax := s.wmin, s.wmax
	s.mu.Unlock()

	events := make([]TickEvent, 0, len(branches))
	for id, b := range branches {
		ev := s.scaleOne(id, b, wmin, wmax)
		if ev.Added != 0 || ev.Removed != 0 {
			events = append(events, ev)
		}
	}
	return events
}

func (s *Supervisor) scaleOne(id string, b Branch, wmin, wmax int) TickEvent {
	tasks := b.NumTasks()
	workers := b.NumWorkers()
	ev := TickEvent{BranchID: id, Tasks: tasks, WorkersBefore: workers, WorkersAfter: workers}

	switch {
	case tasks > 0:
		add := min(wmax-workers, max(0, tasks-workers))
		for i := 0; i < add; i++ {
			b.AddWorker()
		}
		ev.Added = add
		ev.WorkersAfter = workers + add

	case tasks == 0 && workers > wmin:
		if err := b.DelWorker(); err == nil {
			ev.Removed = 1
			ev.WorkersAfter = workers - 1
		}
	}

	return ev
}

func branchID(n int) string {
	return "b" + strconv.Itoa(n)
}
