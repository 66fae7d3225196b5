// Package pool provides memory pooling utilities for keeping the packet
// hot path allocation-free.
package pool

import (
	"sync"
)

// Size classes. Most gameplay frames fit a single UDP datagram, so the
// datagram class is sized just above the common QUIC datagram MTU. The
// frame class covers typical reliable-channel messages, and the bulk
// class covers snapshot-sized decompressed payloads.
const (
	// DatagramBufferSize covers single-datagram payloads.
	DatagramBufferSize = 2048

	// FrameBufferSize is the default capacity for reliable-channel frames.
	FrameBufferSize = 16384

	// BulkBufferSize is used for large decompressed payloads.
	BulkBufferSize = 262144
)

// BufferPool provides pooled byte slices keyed by size class.
// sync.Pool gives per-P sharding, so concurrent connections never contend
// on a single free list.
type BufferPool struct {
	datagramPool sync.Pool // up to DatagramBufferSize
	framePool    sync.Pool // up to FrameBufferSize
	bulkPool     sync.Pool // up to BulkBufferSize
}

// NewBufferPool creates a new buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		datagramPool: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, DatagramBufferSize)
				return &buf
			},
		},
		framePool: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, FrameBufferSize)
				return &buf
			},
		},
		bulkPool: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, BulkBufferSize)
				return &buf
			},
		},
	}
}

// Get returns a buffer with at least the specified capacity.
// The returned buffer has length 0. Call Put when done to return the
// buffer to the pool.
func (p *BufferPool) Get(size int) *[]byte {
	if size <= DatagramBufferSize {
		buf := p.datagramPool.Get().(*[]byte)
		*buf = (*buf)[:0]
		return buf
	}
	if size <= FrameBufferSize {
		buf := p.framePool.Get().(*[]byte)
		*buf = (*buf)[:0]
		return buf
	}
	if size <= BulkBufferSize {
		buf := p.bulkPool.Get().(*[]byte)
		*buf = (*buf)[:0]
		return buf
	}
	// Oversized buffers are allocated directly and never pooled.
	buf := make([]byte, 0, size)
	return &buf
}

// Put returns a buffer to the pool.
// The buffer must not be used after calling Put.
func (p *BufferPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	c := cap(*buf)
	*buf = (*buf)[:0]

	switch {
	case c <= DatagramBufferSize:
		p.datagramPool.Put(buf)
	case c <= FrameBufferSize:
		p.framePool.Put(buf)
	case c <= BulkBufferSize:
		p.bulkPool.Put(buf)
	}
	// Oversized buffers fall through to the GC.
}

// GetExact returns a zeroed buffer with exactly the specified length.
func (p *BufferPool) GetExact(size int) *[]byte {
	buf := p.Get(size)
	if cap(*buf) < size {
		*buf = make([]byte, size)
		return buf
	}
	*buf = (*buf)[:size]
	clear(*buf)
	return buf
}

// global is the default shared buffer pool.
var global = NewBufferPool()

// Global returns the shared process-wide pool.
func Global() *BufferPool {
	return global
}

// GetBuffer returns a buffer from the global pool with at least the
// specified capacity.
func GetBuffer(size int) *[]byte {
	return global.Get(size)
}

// PutBuffer returns a buffer to the global pool.
func PutBuffer(buf *[]byte) {
	global.Put(buf)
}

// GetExactBuffer returns a zeroed buffer from the global pool with exactly
// the specified length.
func GetExactBuffer(size int) *[]byte {
	return global.GetExact(size)
}
