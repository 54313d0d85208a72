package service

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/amitngm/openlens-sub001/internal/cache"
	logModel "github.com/amitngm/openlens-sub001/internal/logs/model"
	"go.uber.org/zap"
)

// LogCache holds fetched log content for one search, keyed by pod. The content
// is only valid for the term and pod set it was fetched for, and is dropped as
// soon as either changes.
type LogCache struct {
	cache  cache.Cache[string]
	scope  string
	mu     sync.Mutex
	logger *zap.Logger
}

func NewLogCache(cache cache.Cache[string], logger *zap.Logger) *LogCache {
	return &LogCache{cache: cache, logger: logger}
}

// EnsureScope clears the cache when term or pods differ from the previous call
// and reports whether it did.
func (c *LogCache) EnsureScope(term string, pods []logModel.PodInfo) bool {
	scope := scopeKey(term, pods)

	c.mu.Lock()
	defer c.mu.Unlock()
	if scope == c.scope {
		return false
	}
	c.cache.Clear()
	c.scope = scope
	return true
}

func (c *LogCache) Get(namespace, pod string) (string, bool) {
	content, err := c.cache.Get(podKey(namespace, pod))
	if err != nil {
		if !errors.Is(err, cache.ErrKeyNotFound) {
			c.logger.Error("Failed to read cached logs", zap.String("pod", pod), zap.Error(err))
		}
		return "", false
	}
	return content, true
}

func (c *LogCache) Put(namespace, pod, content string) {
	if err := c.cache.Put(podKey(namespace, pod), content, int64(len(content))); err != nil {
		c.logger.Warn("Failed to cache logs", zap.String("pod", pod), zap.Error(err))
	}
}

// Contents returns the cached content of pods keyed by pod name, as Search
// expects it.
func (c *LogCache) Contents(pods []logModel.PodInfo) map[string]string {
	contents := make(map[string]string, len(pods))
	for _, pod := range pods {
		if content, ok := c.Get(pod.Namespace, pod.Name); ok {
			contents[pod.Name] = content
		}
	}
	return contents
}

func scopeKey(term string, pods []logModel.PodInfo) string {
	keys := make([]string, 0, len(pods))
	for _, pod := range pods {
		keys = append(keys, podKey(pod.Namespace, pod.Name))
	}
	sort.Strings(keys)
	return strings.ToLower(strings.TrimSpace(term)) + "\x00" + strings.Join(keys, ",")
}
