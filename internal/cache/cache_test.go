package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "list_instances:aws/us-east-1", Key("list_instances", "aws", "us-east-1"))
	assert.Equal(t, "ping:", Key("ping"))
}

func TestGetOrComputeMemoizesWithinTTL(t *testing.T) {
	c := NewManager()
	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return "value", nil
	}

	v, err := c.GetOrCompute("k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	v, err = c.GetOrCompute("k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.Equal(t, 1, calls, "second read within TTL must not hit upstream")
}

func TestGetOrComputeRecomputesAfterExpiry(t *testing.T) {
	c := NewManager()
	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return calls, nil
	}

	_, err := c.GetOrCompute("k", 10*time.Millisecond, compute)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	v, err := c.GetOrCompute("k", 10*time.Millisecond, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}

func TestGetOrComputeNeverCachesErrors(t *testing.T) {
	c := NewManager()
	calls := 0
	compute := func() (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("upstream down")
		}
		return "ok", nil
	}

	_, err := c.GetOrCompute("k", time.Minute, compute)
	require.Error(t, err)

	v, err := c.GetOrCompute("k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := NewManager()
	c.Set("k", 42, 0)

	time.Sleep(5 * time.Millisecond)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestConcurrentAccess(t *testing.T) {
	c := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Set(Key("op", "scope"), n, time.Minute)
			c.Get(Key("op", "scope"))
		}(i)
	}
	wg.Wait()

	_, ok := c.Get(Key("op", "scope"))
	assert.True(t, ok)
}

func TestStats(t *testing.T) {
	c := NewManager()
	c.Get("missing")
	c.Set("k", 1, time.Minute)
	c.Get("k")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Size)
}
