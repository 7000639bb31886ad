package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumd-dev/forumd/internal/protocol"
)

func TestResponseCacheRoundTrip(t *testing.T) {
	c := NewResponseCache(time.Minute, 8)

	_, ok := c.Get("req-1")
	assert.False(t, ok)

	c.Put("req-1", &protocol.Response{RequestId: "req-1", Status: protocol.StatusOK})

	resp, ok := c.Get("req-1")
	require.True(t, ok)
	assert.Equal(t, protocol.StatusOK, resp.Status)

	// The cache hands out copies, not shared pointers.
	resp.Status = protocol.StatusFail
	again, ok := c.Get("req-1")
	require.True(t, ok)
	assert.Equal(t, protocol.StatusOK, again.Status)
}

func TestResponseCacheExpiry(t *testing.T) {
	c := NewResponseCache(10*time.Millisecond, 8)
	c.Put("req-1", &protocol.Response{Status: protocol.StatusOK})

	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("req-1")
	assert.False(t, ok)
}

func TestResponseCacheBounded(t *testing.T) {
	const capacity = 16
	c := NewResponseCache(time.Minute, capacity)

	for i := 0; i < capacity*4; i++ {
		c.Put(fmt.Sprintf("req-%d", i), &protocol.Response{Status: protocol.StatusOK})
	}

	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()
	assert.LessOrEqual(t, size, capacity)

	// The most recent entry survives the evictions.
	_, ok := c.Get(fmt.Sprintf("req-%d", capacity*4-1))
	assert.True(t, ok)
}

func TestResponseCacheIgnoresEmpty(t *testing.T) {
	c := NewResponseCache(time.Minute, 8)
	c.Put("", &protocol.Response{Status: protocol.StatusOK})
	c.Put("req-1", nil)

	_, ok := c.Get("")
	assert.False(t, ok)
	_, ok = c.Get("req-1")
	assert.False(t, ok)
}
