package pool

import (
	"sync"
	"testing"
)

func TestNewBufferPool(t *testing.T) {
	p := NewBufferPool()
	if p == nil {
		t.Fatal("NewBufferPool() returned nil")
	}
}

func TestBufferPool_Get_SizeClasses(t *testing.T) {
	p := NewBufferPool()

	tests := []struct {
		name string
		size int
	}{
		{"datagram", 1200},
		{"frame", 8000},
		{"bulk", 100000},
		{"oversized", BulkBufferSize + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := p.Get(tt.size)
			if buf == nil {
				t.Fatal("Get() returned nil")
			}
			if len(*buf) != 0 {
				t.Errorf("buffer length = %d, want 0", len(*buf))
			}
			if cap(*buf) < tt.size {
				t.Errorf("buffer capacity = %d, want >= %d", cap(*buf), tt.size)
			}
		})
	}
}

func TestBufferPool_Put_ResetsLength(t *testing.T) {
	p := NewBufferPool()

	buf := p.Get(100)
	*buf = append(*buf, []byte("gameplay snapshot")...)
	p.Put(buf)

	buf2 := p.Get(100)
	if len(*buf2) != 0 {
		t.Errorf("reused buffer length = %d, want 0", len(*buf2))
	}
}

func TestBufferPool_Put_Nil(t *testing.T) {
	p := NewBufferPool()
	p.Put(nil) // must not panic
}

func TestBufferPool_GetExact(t *testing.T) {
	p := NewBufferPool()

	buf := p.Get(64)
	*buf = append(*buf, 0xFF, 0xFF, 0xFF)
	p.Put(buf)

	exact := p.GetExact(64)
	if len(*exact) != 64 {
		t.Fatalf("GetExact length = %d, want 64", len(*exact))
	}
	for i, b := range *exact {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want zeroed buffer", i, b)
		}
	}
}

func TestBufferPool_Concurrent(t *testing.T) {
	p := NewBufferPool()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				buf := p.Get(1500)
				*buf = append(*buf, byte(j))
				p.Put(buf)
			}
		}()
	}
	wg.Wait()
}

func TestGlobalPool(t *testing.T) {
	buf := GetBuffer(512)
	if buf == nil || cap(*buf) < 512 {
		t.Fatal("GetBuffer() returned unusable buffer")
	}
	PutBuffer(buf)

	exact := GetExactBuffer(32)
	if len(*exact) != 32 {
		t.Fatalf("GetExactBuffer length = %d, want 32", len(*exact))
	}
	PutBuffer(exact)
}

func BenchmarkBufferPool_GetPut(b *testing.B) {
	p := NewBufferPool()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := p.Get(1400)
			p.Put(buf)
		}
	})
}
