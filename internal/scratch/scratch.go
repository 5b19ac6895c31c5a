// Package scratch provides pooled int64 buffers for call-scoped work.
//
// Buffers are returned to the pool by the release function handed out with
// them; using a buffer after release is a bug.
package scratch

import "sync"

// DefaultCapacity is the capacity of pooled buffers.
const DefaultCapacity = 4096

// maxPooledCapacity bounds what is kept in the pool.
const maxPooledCapacity = 1 << 20

type buffer struct {
	data []int64
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		return &buffer{data: make([]int64, DefaultCapacity)}
	},
}

// Get returns a buffer of length n and the function that releases it.
// The contents are unspecified.
func Get(n int) ([]int64, func()) {
	if n < 0 {
		n = 0
	}
	b := bufferPool.Get().(*buffer)
	if cap(b.data) < n {
		b.data = make([]int64, n)
	}
	data := b.data[:n]
	released := false
	return data, func() {
		if released {
			return
		}
		released = true
		put(b)
	}
}

func put(b *buffer) {
	if cap(b.data) > maxPooledCapacity {
		return
	}
	bufferPool.Put(b)
}
