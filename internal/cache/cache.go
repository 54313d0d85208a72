package cache

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cache is a typed view over a ristretto cache. Eviction follows ristretto's
// TinyLFU admission and sampled LFU eviction.
type Cache[ValueType any] interface {
	Get(key string) (ValueType, error)
	Put(key string, value ValueType, cost int64) error
	Delete(key string)
	Clear()
}

type CacheImpl[ValueType any] struct {
	cache *ristretto.Cache
}

func NewCacheImpl[ValueType any](cache *ristretto.Cache) *CacheImpl[ValueType] {
	return &CacheImpl[ValueType]{cache: cache}
}

// counterFactor is the number of frequency counters kept per expected entry.
const counterFactor = 10

// NewRistrettoCache builds a ristretto cache holding up to maxCost units across
// about maxEntries items. Counters follow the entry count, never the cost.
func NewRistrettoCache(maxEntries int64, maxCost int64) (*ristretto.Cache, error) {
	cache, err := ristretto.NewCache(ristrettoConfig(maxEntries, maxCost))
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}
	return cache, nil
}

func ristrettoConfig(maxEntries int64, maxCost int64) *ristretto.Config {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if maxCost < 1 {
		maxCost = 1
	}
	return &ristretto.Config{
		NumCounters: maxEntries * counterFactor,
		MaxCost:     maxCost,
		BufferItems: 64,
	}
}

func (c *CacheImpl[ValueType]) Get(key string) (ValueType, error) {
	var zero ValueType
	value, found := c.cache.Get(key)
	if !found {
		return zero, ErrKeyNotFound
	}
	typedValue, ok := value.(ValueType)
	if !ok {
		return zero, fmt.Errorf("value not of expected type %T returned from cache when getting", value)
	}
	return typedValue, nil
}

// Put stores the value and waits for the write buffer to drain so that a
// following Get observes it.
func (c *CacheImpl[ValueType]) Put(key string, value ValueType, cost int64) error {
	if cost < 1 {
		cost = 1
	}
	if !c.cache.Set(key, value, cost) {
		return ErrSetFailed
	}
	c.cache.Wait()
	return nil
}

func (c *CacheImpl[ValueType]) Delete(key string) {
	c.cache.Del(key)
}

func (c *CacheImpl[ValueType]) Clear() {
	c.cache.Clear()
}

var (
	ErrKeyNotFound = errors.New("key not found within the cache")
	ErrSetFailed   = errors.New("failed to set value in cache")
)
