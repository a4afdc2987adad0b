package rowsync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval(t *testing.T) {
	for _, tt := range []struct{ width, want int }{
		{176, 1}, {640, 1}, {641, 4}, {1280, 4}, {1920, 8}, {3840, 16},
	} {
		assert.Equal(t, tt.want, Interval(tt.width), "width %d", tt.width)
	}
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 1, Workers(4, 1))
	assert.Equal(t, 1, Workers(1, 10))
	assert.GreaterOrEqual(t, Workers(0, 10), 1)
	assert.LessOrEqual(t, Workers(64, 3), 3)
}

func TestWaitReturnsOnceSignalled(t *testing.T) {
	s := New(2, 4)
	released := make(chan struct{})
	go func() {
		s.Wait(0, 3)
		close(released)
	}()
	s.Signal(0, 2)
	select {
	case <-released:
		t.Fatal("released before enough columns were published")
	default:
	}
	s.Signal(0, 3)
	<-released
	assert.Equal(t, 3, int(s.rows[0].done.Load()))
}

// TestPipelineOrdering checks that every column sees its above and
// above-right neighbours finished, whatever the worker count.
func TestPipelineOrdering(t *testing.T) {
	const rows, cols = 9, 13
	for _, workers := range []int{1, 2, 4, 8} {
		s := New(rows, cols)
		s.Interval = 3
		var mu sync.Mutex
		finished := make([][]bool, rows)
		for r := range finished {
			finished[r] = make([]bool, cols)
		}
		var violations int
		s.Run(workers, func(r int) {
			for c := 0; c < cols; c++ {
				s.Column(r, c, cols, func() {
					mu.Lock()
					defer mu.Unlock()
					if r > 0 {
						if !finished[r-1][c] || (c+1 < cols && !finished[r-1][c+1]) {
							violations++
						}
					}
					finished[r][c] = true
				})
			}
		})
		require.Zero(t, violations, "workers %d", workers)
		for r := 0; r < rows; r++ {
			assert.Equal(t, cols, int(s.rows[r].done.Load()))
		}
		s.Reset()
		assert.Zero(t, int(s.rows[0].done.Load()))
	}
}
