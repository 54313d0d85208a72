package cache

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheImpl_Get(t *testing.T) {
	t.Run("Returns error if key is not found", func(t *testing.T) {
		c := getNewCacheImpl[string](t)
		_, err := c.Get("key")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("Returns value if key is found", func(t *testing.T) {
		c := getNewCacheImpl[[]string](t)
		value := []string{"[app] line one", "[app] line two"}
		require.NoError(t, c.Put("shop/pod-a", value, int64(len(value))))

		res, err := c.Get("shop/pod-a")
		require.NoError(t, err)
		assert.Equal(t, value, res)
	})
}

func TestCacheImpl_Put(t *testing.T) {
	t.Run("Replaces the value of an existing key", func(t *testing.T) {
		c := getNewCacheImpl[string](t)
		require.NoError(t, c.Put("key", "first", 1))
		require.NoError(t, c.Put("key", "second", 1))

		res, err := c.Get("key")
		require.NoError(t, err)
		assert.Equal(t, "second", res)
	})
}

func TestCacheImpl_Clear(t *testing.T) {
	t.Run("Drops every key", func(t *testing.T) {
		c := getNewCacheImpl[string](t)
		require.NoError(t, c.Put("a", "1", 1))
		require.NoError(t, c.Put("b", "2", 1))

		c.Clear()

		_, err := c.Get("a")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		_, err = c.Get("b")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("Delete removes a single key", func(t *testing.T) {
		c := getNewCacheImpl[string](t)
		require.NoError(t, c.Put("a", "1", 1))
		c.Delete("a")
		c.cache.Wait()

		_, err := c.Get("a")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestNewRistrettoCache(t *testing.T) {
	t.Run("Sizes counters from the entry count and not the cost", func(t *testing.T) {
		config := ristrettoConfig(1000, 64<<20)
		assert.Equal(t, int64(10000), config.NumCounters)
		assert.Equal(t, int64(64<<20), config.MaxCost)
	})

	t.Run("Clamps non positive sizes", func(t *testing.T) {
		config := ristrettoConfig(0, -5)
		assert.Equal(t, int64(counterFactor), config.NumCounters)
		assert.Equal(t, int64(1), config.MaxCost)
	})

	t.Run("Holds byte costed values within a small allocation", func(t *testing.T) {
		var before, after runtime.MemStats
		runtime.GC()
		runtime.ReadMemStats(&before)
		rc, err := NewRistrettoCache(1000, 64<<20)
		runtime.ReadMemStats(&after)
		require.NoError(t, err)
		defer rc.Close()

		assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(32<<20))

		c := NewCacheImpl[string](rc)
		require.NoError(t, c.Put("shop/cart-1", "line one\nline two", 17))
		res, err := c.Get("shop/cart-1")
		require.NoError(t, err)
		assert.Equal(t, "line one\nline two", res)
	})
}

func getNewCacheImpl[ValueType any](t *testing.T) *CacheImpl[ValueType] {
	t.Helper()
	rc, err := NewRistrettoCache(1000, 1<<20)
	require.NoError(t, err)
	return NewCacheImpl[ValueType](rc)
}
