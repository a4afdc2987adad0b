// Package rowsync pipelines macroblock rows across goroutines. A row may
// decide column c only once the row above has published enough columns for
// the above and above-right neighbours of c to be final.
package rowsync

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Sync tracks per-row progress. The wait side takes an atomic fast path and
// only locks when the data is not ready yet.
type Sync struct {
	rows []row
	// Interval is the number of columns decided between two signals.
	Interval int
	next     atomic.Int32
}

// row is padded to a cache line to avoid false sharing.
type row struct {
	done    atomic.Int32
	waiters atomic.Int32
	mu      sync.Mutex
	cond    *sync.Cond
	_       [8]byte
}

// New returns a Sync for rows macroblock rows of cols columns.
func New(rows, cols int) *Sync {
	s := &Sync{rows: make([]row, rows), Interval: Interval(cols * 16)}
	for i := range s.rows {
		s.rows[i].cond = sync.NewCond(&s.rows[i].mu)
	}
	return s
}

// Interval is the signalling granularity for a frame width in pixels:
// wider frames signal less often.
func Interval(width int) int {
	switch {
	case width <= 640:
		return 1
	case width <= 1280:
		return 4
	case width <= 2560:
		return 8
	}
	return 16
}

// Reset clears all progress for a new frame.
func (s *Sync) Reset() {
	for i := range s.rows {
		s.rows[i].done.Store(0)
	}
	s.next.Store(0)
}

// Wait blocks until row r has published at least needed columns.
func (s *Sync) Wait(r, needed int) {
	w := &s.rows[r]
	n := int32(needed)
	if w.done.Load() >= n {
		return
	}
	w.waiters.Add(1)
	w.mu.Lock()
	for w.done.Load() < n {
		w.cond.Wait()
	}
	w.mu.Unlock()
	w.waiters.Add(-1)
}

// Signal publishes that row r has finished done columns.
func (s *Sync) Signal(r, done int) {
	w := &s.rows[r]
	w.done.Store(int32(done))
	if w.waiters.Load() > 0 {
		w.mu.Lock()
		w.mu.Unlock()
		w.cond.Broadcast()
	}
}

// Column runs fn for column c of row r once its neighbours above are final,
// then publishes the progress every Interval columns and at the row end.
func (s *Sync) Column(r, c, cols int, fn func()) {
	if r > 0 {
		need := c + 2
		if need > cols {
			need = cols
		}
		s.Wait(r-1, need)
	}
	fn()
	if done := c + 1; done == cols || done%s.Interval == 0 {
		s.Signal(r, done)
	}
}

// Workers caps a requested thread count: at most GOMAXPROCS, at most one
// per row and at least one. A request of zero or less means GOMAXPROCS.
func Workers(threads, rows int) int {
	n := runtime.GOMAXPROCS(0)
	if threads > 0 && threads < n {
		n = threads
	}
	if n > rows {
		n = rows
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run starts workers goroutines that claim rows in order and calls fn for
// each. It returns when every row has been processed.
func (s *Sync) Run(workers int, fn func(r int)) {
	s.next.Store(0)
	if workers <= 1 {
		for r := range s.rows {
			fn(r)
		}
		return
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				r := int(s.next.Add(1) - 1)
				if r >= len(s.rows) {
					return
				}
				fn(r)
			}
		}()
	}
	wg.Wait()
}
