package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPut_ExactSize(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"1B", 1},
		{"64K", Size64K},
		{"CIF", 352 * 288},
		{"1M", Size1M},
		{"720p", 1280 * 720 * 3 / 2},
		{"16M", Size16M},
		{"oversize", Size16M + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Get(tt.size)
			assert.Len(t, b, tt.size)
			Put(b)
		})
	}
}

func TestGet_CapacityIsClass(t *testing.T) {
	b := Get(Size256K + 1)
	assert.Equal(t, Size1M, cap(b))
	Put(b)
}

func TestPut_ForeignSlice(t *testing.T) {
	Put(make([]byte, 100))
	Put(make([]byte, 0, Size64K+3))
	b := Get(10)
	assert.Len(t, b, 10)
}

func TestConcurrentGetPut(t *testing.T) {
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b := Get(Size64K * (1 + g%3))
				b[0] = byte(g)
				Put(b)
			}
		}(g)
	}
	wg.Wait()
}
