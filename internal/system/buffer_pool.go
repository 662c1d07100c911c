package system

import "sync"

// BytePool reuses byte buffers of fixed sizes, keyed by length, to keep tile
// encoding from churning the garbage collector.
type BytePool struct {
	pools map[int]*sync.Pool
	mu    sync.RWMutex
}

func NewBytePool() *BytePool {
	return &BytePool{pools: make(map[int]*sync.Pool)}
}

// Get returns a buffer of exactly n bytes. Its contents are unspecified.
func (p *BytePool) Get(n int) []byte {
	p.mu.RLock()
	pool, exists := p.pools[n]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[n]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					b := make([]byte, n)
					return &b
				},
			}
			p.pools[n] = pool
		}
		p.mu.Unlock()
	}

	return *pool.Get().(*[]byte)
}

// Put hands b back for reuse by a later Get of the same length.
func (p *BytePool) Put(b []byte) {
	if b == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[len(b)]
	p.mu.RUnlock()

	if exists {
		pool.Put(&b)
	}
}
