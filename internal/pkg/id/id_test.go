package id

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSonyflake(t *testing.T) {
	t.Parallel()

	sf, err := NewSonyflake(1, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	var gen Generator = sf
	prev := uint64(0)
	for i := 0; i < 100; i++ {
		id, err := gen.NextID()
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}

	// 起始时间在未来，sonyflake 拒绝初始化
	_, err = NewSonyflake(1, time.Now().Add(time.Hour))
	assert.Error(t, err)
}

func TestSequence(t *testing.T) {
	t.Parallel()

	seq := NewSequence(100)
	const n = 50
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := seq.NextID()
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uint64]bool{}
	for id := range ids {
		assert.False(t, seen[id])
		assert.Greater(t, id, uint64(100))
		seen[id] = true
	}
	assert.Len(t, seen, n)
}
