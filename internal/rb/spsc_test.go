package rb

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	itemsCount              = 100_000
	bufferCapacity          = 128
	benchmarkBufferCapacity = 2048
)

func Test_roundToPowerOf2(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(uint32(1), roundToPowerOf2(1))
	assert.Equal(uint32(2), roundToPowerOf2(2))
	assert.Equal(uint32(4), roundToPowerOf2(3))
	assert.Equal(uint32(128), roundToPowerOf2(100))
	assert.Equal(uint32(1024), roundToPowerOf2(1024))
}

func Test_SPSC_full(t *testing.T) {
	assert := assert.New(t)

	q := NewSPSC[int](3)
	assert.Equal(uint32(4), q.Cap())

	for i := range 4 {
		assert.True(q.Push(i))
	}
	assert.False(q.Push(4))
	assert.Equal(uint32(4), q.Len())

	for i := range 4 {
		item, ok := q.Pop()
		assert.True(ok)
		assert.Equal(i, item)
	}

	_, ok := q.Pop()
	assert.False(ok)
	assert.Zero(q.Len())
}

func Test_SPSC_concurrent(t *testing.T) {
	assert := assert.New(t)

	q := NewSPSC[int](bufferCapacity)

	wg := &sync.WaitGroup{}
	wg.Add(1)

	go func() {
		defer wg.Done()

		for val := 0; val < itemsCount; {
			if !q.Push(val) {
				runtime.Gosched()
				continue
			}
			val++
		}
	}()

	outOfOrder := 0
	expected := 0
	for expected < itemsCount {
		item, ok := q.Pop()
		if !ok {
			runtime.Gosched()
			continue
		}

		if item != expected {
			outOfOrder++
		}
		expected++
	}

	wg.Wait()

	assert.Zero(outOfOrder)
	assert.Zero(q.Len())
}

func Benchmark_SPSC(b *testing.B) {
	q := NewSPSC[int](benchmarkBufferCapacity)

	b.ResetTimer()
	for b.Loop() {
		q.Push(1)
		q.Pop()
	}
}
