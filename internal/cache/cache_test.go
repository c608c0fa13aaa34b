package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoComputesOnce(t *testing.T) {
	t.Parallel()
	m := NewMemo[string, int]()
	var calls int32

	compute := func() (int, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := m.Get("k", compute)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMemoDoesNotCacheRejection(t *testing.T) {
	t.Parallel()
	m := NewMemo[string, int]()
	var calls int32
	failFirst := func() (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return 0, errors.New("boom")
		}
		return 7, nil
	}

	_, err := m.Get("k", failFirst)
	assert.Error(t, err)

	v, err := m.Get("k", failFirst)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMemoInvalidate(t *testing.T) {
	t.Parallel()
	m := NewMemo[string, int]()
	var calls int32
	compute := func() (int, error) {
		n := atomic.AddInt32(&calls, 1)
		return int(n), nil
	}

	v1, err := m.Get("k", compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	v2, _ := m.Get("k", compute)
	assert.Equal(t, 1, v2) // still cached

	m.Invalidate("k")
	assert.False(t, m.Has("k"))

	v3, err := m.Get("k", compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v3)
}
