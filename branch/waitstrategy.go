package branch

// WaitStrategy selects the latency/CPU trade-off a worker uses while it has
// no task, no retirement request, and is not participating in a quiesce
// barrier. It is fixed for the lifetime of a WorkBranch.
type WaitStrategy int

const (
	// LowLatency yields the CPU and retries immediately. No sleeps, no
	// condition waits — lowest latency, highest CPU usage under idle load.
	LowLatency WaitStrategy = iota

	// Balance spins up to maxSpin times, then sleeps briefly and resets
	// the spin counter whenever it finds work.
	Balance

	// Blocking parks on a condition variable until the queue is
	// non-empty, a quiesce or shutdown begins, or a retirement is
	// requested. Lowest CPU usage, highest wake latency.
	Blocking
)

func (s WaitStrategy) String() string {
	switch s {
	case LowLatency:
		return "low_latency"
	case Balance:
		return "balance"
	case Blocking:
		return "blocking"
	default:
		return "unknown"
	}
}

// maxSpin is the number of consecutive yields Balance performs before
// sleeping.
const maxSpin = 10_000
