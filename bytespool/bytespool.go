// Package bytespool recycles frame buffers by size class.
package bytespool

import (
	"sync"
)

type (
	poolInfo struct {
		sz int
		p  *sync.Pool
	}
)

func newPoolInfo(sz int) *poolInfo {
	return &poolInfo{
		sz: sz,
		p: &sync.Pool{New: func() interface{} {
			b := make([]byte, 0, sz)
			return &b
		}},
	}
}

var (
	pools []*poolInfo
)

func init() {
	// 64B .. 64KB by powers of two
	for sz := 64; sz <= 64*1024; sz <<= 1 {
		pools = append(pools, newPoolInfo(sz))
	}
	// then 64KB increments up to 1MB
	for i := 2; i <= 16; i++ {
		pools = append(pools, newPoolInfo(i*64*1024))
	}
}

// Alloc returns a buffer of length sz, recycled when possible.
// Buffers above the largest class are plain allocations.
func Alloc(sz int) []byte {
	if sz <= 0 {
		return []byte{}
	}

	for _, pi := range pools {
		if sz <= pi.sz {
			b := pi.p.Get().(*[]byte)
			return (*b)[:sz]
		}
	}
	return make([]byte, sz)
}

// Free returns p to its pool. p must not be used afterwards.
func Free(p []byte) {
	sz := cap(p)
	if sz <= 0 {
		return
	}
	for _, pi := range pools {
		if sz == pi.sz {
			p = p[:0]
			pi.p.Put(&p)
			return
		}
	}
}
