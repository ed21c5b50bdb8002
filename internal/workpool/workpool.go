// Package workpool bounds fan-out for recursive fork/join work done
// locally on one processor, adapted from sorting/thread_pool.go's
// channel-backed worker pool: instead of dispatching arbitrary
// row-range SortingFunction callbacks, a Pool here bounds the
// goroutine fan-out of a recursive divide-and-conquer routine (this
// module's parallel local sort, spec.md §5's per-processor local
// work). A caller that needs to know when a specific submitted task
// has finished joins on its own sync.WaitGroup around the Go call;
// Pool only bounds concurrency, it does not track global completion
// the way sorting.ThreadPool's Wait did.
package workpool

import "sync/atomic"

// Pool runs submitted closures on a fixed number of worker
// goroutines, falling back to running a closure inline when every
// worker is already busy, so recursive submission never blocks
// waiting for pool capacity to free up.
type Pool struct {
	tasks chan func()
	done  chan struct{}
	idle  atomic.Int64 // workers not running a task
}

// New starts a Pool with the given number of worker goroutines.
// workers < 1 is treated as 1.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{tasks: make(chan func()), done: make(chan struct{})}
	p.idle.Store(int64(workers))
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for {
		select {
		case fn := <-p.tasks:
			fn()
			p.idle.Add(1)
		case <-p.done:
			return
		}
	}
}

// Go runs fn on a worker goroutine if one is not running another
// task, or inline in the caller's own goroutine otherwise. Go never
// waits for a busy worker to finish.
func (p *Pool) Go(fn func()) {
	if p.idle.Add(-1) >= 0 {
		p.tasks <- fn
		return
	}
	p.idle.Add(1)
	fn()
}

// Close stops every worker goroutine. Callers must have already
// joined every task they submitted (e.g. via their own WaitGroup)
// before calling Close.
func (p *Pool) Close() {
	close(p.done)
}
