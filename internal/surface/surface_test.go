package surface

import (
	"sync"
	"testing"

	"github.com/go-gst/go-gst/gst"
	"github.com/stretchr/testify/assert"
)

func TestGetCreatesAndReusesSameInstance(t *testing.T) {
	r := NewRegistry()

	a := r.Get("input_3010")
	b := r.Get("input_3010")
	assert.Same(t, a, b)
	assert.Equal(t, 2, r.Refcount("input_3010"))
}

func TestUnrefToZeroFreesNameForNewInstance(t *testing.T) {
	r := NewRegistry()

	a := r.Get("composite_a")
	r.Unref(a)

	b := r.Get("composite_a")
	assert.NotSame(t, a, b)
}

func TestPublishThenTakeObservesLatestBuffer(t *testing.T) {
	r := NewRegistry()
	s := r.Get("branch_3010")
	defer r.Unref(s)

	buf1 := gst.NewBufferFromBytes([]byte("frame-1"))
	PublishVideo(s, buf1)
	assert.Same(t, buf1, TakeVideo(s))

	buf2 := gst.NewBufferFromBytes([]byte("frame-2"))
	PublishVideo(s, buf2)
	assert.Same(t, buf2, TakeVideo(s))
	assert.Equal(t, 1, VideoBufferCount(s))
}

func TestConcurrentGetIsLinearizable(t *testing.T) {
	r := NewRegistry()
	const n = 64

	var wg sync.WaitGroup
	results := make([]*Surface, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = r.Get("composite_out")
		}(i)
	}
	wg.Wait()

	first := results[0]
	for _, s := range results {
		assert.Same(t, first, s)
	}
	assert.Equal(t, n, r.Refcount("composite_out"))
}
