// Package pool provides bucketed sync.Pool instances for the frame-sized
// buffers the encoder allocates every frame (source copies, reconstructions,
// first-pass scratch). Buffers are organized by size class to minimize waste.
package pool

import "sync"

// Size classes for bucketed pools. Frame planes dominate, so the classes
// start at a CIF luma plane and grow by 4x.
const (
	Size64K  = 1 << 16
	Size256K = 1 << 18
	Size1M   = 1 << 20
	Size4M   = 1 << 22
	Size16M  = 1 << 24
)

var sizes = [...]int{Size64K, Size256K, Size1M, Size4M, Size16M}

var pools [len(sizes)]sync.Pool

func init() {
	for i := range pools {
		sz := sizes[i]
		pools[i].New = func() any {
			b := make([]byte, sz)
			return &b
		}
	}
}

// bucketIndex returns the pool index for a given size, or -1 when the size
// exceeds the largest class.
func bucketIndex(size int) int {
	for i, sz := range sizes {
		if size <= sz {
			return i
		}
	}
	return -1
}

// Get returns a byte slice of exactly size bytes. Its contents are
// unspecified. Sizes above the largest class are allocated directly.
func Get(size int) []byte {
	idx := bucketIndex(size)
	if idx < 0 {
		return make([]byte, size)
	}
	bp := pools[idx].Get().(*[]byte)
	return (*bp)[:size]
}

// Put returns a slice obtained from Get. Slices whose capacity does not
// match a size class exactly are dropped.
func Put(b []byte) {
	c := cap(b)
	idx := bucketIndex(c)
	if idx < 0 || sizes[idx] != c {
		return
	}
	b = b[:c]
	pools[idx].Put(&b)
}
