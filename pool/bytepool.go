// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync"

// BytePool hands out fixed-size byte slices backed by a sync.Pool.
type BytePool struct {
	size int
	p    sync.Pool
}

// NewBytePool creates a pool of buffers of exactly size bytes.
func NewBytePool(size int) *BytePool {
	b := &BytePool{size: size}
	b.p.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return b
}

// Size returns the buffer size served by the pool.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer from the pool.
func (b *BytePool) GetBuffer() []byte {
	return *(b.p.Get().(*[]byte))
}

// PutBuffer returns a buffer to the pool. Buffers of a foreign size are
// dropped for the GC.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	buf = buf[:b.size]
	b.p.Put(&buf)
}
