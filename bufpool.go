package serial

import "sync"

// pooledBufferSize is the largest heap buffer served from heapBufPool.
// A 4KB default is chosen to avoid re-allocations for common message sizes.
const pooledBufferSize = 4096

// heapBufPool reuses small heap buffers between Serialize calls. A buffer
// returns to the pool when its SerializedInfo is released.
var heapBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, pooledBufferSize)
		return &b
	},
}

func getPooled(n int) (*[]byte, bool) {
	if n > pooledBufferSize {
		return nil, false
	}
	p := heapBufPool.Get().(*[]byte)
	return p, true
}

func putPooled(p *[]byte) {
	b := (*p)[:cap(*p)]
	clear(b)
	*p = b
	heapBufPool.Put(p)
}
