package service

import (
	"context"
	"strings"
	"sync"
	"time"

	flowModel "github.com/amitngm/openlens-sub001/internal/flow/model"
	logModel "github.com/amitngm/openlens-sub001/internal/logs/model"
	"github.com/amitngm/openlens-sub001/internal/logs/source"
	"github.com/amitngm/openlens-sub001/internal/search/debounce"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const timeout = 10 * time.Second

type SessionConfig struct {
	PodDelay       time.Duration
	LogDelay       time.Duration
	TailLines      int
	MaxConcurrency int
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PodDelay:       800 * time.Millisecond,
		LogDelay:       1000 * time.Millisecond,
		TailLines:      500,
		MaxConcurrency: 8,
	}
}

type podQuery struct {
	namespace string
}

type logQuery struct {
	term string
	pods []logModel.PodInfo
}

// Session is the state of one interactive search. Term changes re-fetch pod
// metadata and pod logs through independent debouncers, the latest flows are
// pushed in by the caller.
type Session struct {
	pods   source.PodLister
	logs   source.PodLogSource
	cache  *LogCache
	config SessionConfig
	logger *zap.Logger

	podDebouncer *debounce.Debouncer[podQuery, []logModel.PodInfo]
	logDebouncer *debounce.Debouncer[logQuery, map[string]string]

	mu        sync.RWMutex
	namespace string
	term      string
	flows     []flowModel.FlowGraph
	podInfos  []logModel.PodInfo
}

func NewSession(
	pods source.PodLister,
	logs source.PodLogSource,
	cache *LogCache,
	config SessionConfig,
	logger *zap.Logger,
) *Session {
	s := &Session{
		pods:   pods,
		logs:   logs,
		cache:  cache,
		config: config,
		logger: logger,
	}
	s.podDebouncer = debounce.NewDebouncer(config.PodDelay, s.fetchPods, s.applyPods)
	s.logDebouncer = debounce.NewDebouncer(config.LogDelay, s.fetchLogs, s.applyLogs)
	return s
}

// SetFlows replaces the flows searched by the session.
func (s *Session) SetFlows(flows []flowModel.FlowGraph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows = flows
}

// Update records a new namespace and term and schedules the debounced
// re-fetches. An empty term skips the log fetch.
func (s *Session) Update(namespace, term string) {
	s.mu.Lock()
	s.namespace = namespace
	s.term = term
	pods := s.podInfos
	s.mu.Unlock()

	s.podDebouncer.Trigger(podQuery{namespace: namespace})
	if strings.TrimSpace(term) != "" {
		s.logDebouncer.Trigger(logQuery{term: term, pods: pods})
	}
}

// Result searches the current flows, pods, and cached logs.
func (s *Session) Result() Result {
	s.mu.RLock()
	flows, pods, term, namespace := s.flows, s.podInfos, s.term, s.namespace
	s.mu.RUnlock()

	return Search(flows, pods, s.cache.Contents(pods), term, namespace)
}

func (s *Session) Close() {
	s.podDebouncer.Stop()
	s.logDebouncer.Stop()
}

func (s *Session) fetchPods(query podQuery) ([]logModel.PodInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.pods.ListPods(ctx, query.namespace)
}

func (s *Session) applyPods(pods []logModel.PodInfo, err error) {
	if err != nil {
		s.logger.Error("Failed to refresh pods for search", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.podInfos = pods
	term := s.term
	s.mu.Unlock()

	if strings.TrimSpace(term) != "" {
		s.logDebouncer.Trigger(logQuery{term: term, pods: pods})
	}
}

// fetchLogs fetches every pod missing from the cache. A pod that cannot be
// read is left out.
func (s *Session) fetchLogs(query logQuery) (map[string]string, error) {
	s.cache.EnsureScope(query.term, query.pods)

	var mu sync.Mutex
	fetched := make(map[string]string)

	group := new(errgroup.Group)
	if s.config.MaxConcurrency > 0 {
		group.SetLimit(s.config.MaxConcurrency)
	}
	for _, pod := range query.pods {
		if _, ok := s.cache.Get(pod.Namespace, pod.Name); ok {
			continue
		}
		group.Go(func() error {
			content, err := s.fetchPodLogs(pod)
			if err != nil {
				s.logger.Warn("Failed to fetch logs for search",
					zap.String("namespace", pod.Namespace),
					zap.String("pod", pod.Name),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			fetched[podKey(pod.Namespace, pod.Name)] = content
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return fetched, nil
}

func (s *Session) fetchPodLogs(pod logModel.PodInfo) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	containers := make([]string, 0, len(pod.Containers))
	for _, container := range pod.Containers {
		containers = append(containers, container.Name)
	}
	if len(containers) == 0 {
		containers = []string{""}
	}

	var content strings.Builder
	for _, container := range containers {
		lines, err := s.logs.FetchLogs(ctx, pod.Namespace, pod.Name, container, s.config.TailLines)
		if err != nil {
			return "", err
		}
		for _, line := range lines {
			content.WriteString(line)
			content.WriteByte('\n')
		}
	}
	return content.String(), nil
}

func (s *Session) applyLogs(fetched map[string]string, _ error) {
	s.mu.RLock()
	term, pods := s.term, s.podInfos
	s.mu.RUnlock()

	if s.cache.EnsureScope(term, pods) {
		s.logger.Debug("Search scope changed before logs arrived, discarding")
		return
	}
	for key, content := range fetched {
		namespace, pod, _ := strings.Cut(key, "/")
		s.cache.Put(namespace, pod, content)
	}
}
