package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amitngm/openlens-sub001/internal/logs/model"
	"github.com/amitngm/openlens-sub001/internal/logs/parser"
	"github.com/amitngm/openlens-sub001/internal/logs/source"
	"github.com/amitngm/openlens-sub001/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shortTraceIDLength = 16

type CorrelatorConfig struct {
	// Buffer widens the flow window on both sides.
	Buffer time.Duration
	// MaxConcurrency bounds the pods fetched at once.
	MaxConcurrency int
	// ContainerConcurrency bounds the containers fetched at once within a pod.
	ContainerConcurrency int
	TailLines            int
	// FetchTimeout bounds each list or fetch call. Zero leaves only ctx in control.
	FetchTimeout time.Duration
}

func DefaultCorrelatorConfig() CorrelatorConfig {
	return CorrelatorConfig{
		Buffer:               5 * time.Second,
		MaxConcurrency:       16,
		ContainerConcurrency: 4,
		TailLines:            1000,
	}
}

type LogCorrelator interface {
	// CorrelateLogs fetches the logs of every pod and keeps the lines that fall in
	// the buffered window. Pods that cannot be read are left out of the result.
	CorrelateLogs(
		ctx context.Context,
		pods []model.PodTarget,
		window model.Window,
		traceID string,
		searchTerm string,
	) map[string]model.PodLogBundle
}

type LogCorrelatorImpl struct {
	source  source.PodLogSource
	config  CorrelatorConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewLogCorrelator(
	source source.PodLogSource,
	config CorrelatorConfig,
	metrics *metrics.Metrics,
	logger *zap.Logger,
) *LogCorrelatorImpl {
	defaults := DefaultCorrelatorConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.ContainerConcurrency <= 0 {
		config.ContainerConcurrency = defaults.ContainerConcurrency
	}
	return &LogCorrelatorImpl{
		source:  source,
		config:  config,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// matcher holds the lowered terms a line is checked against.
type matcher struct {
	traceID      string
	shortTraceID string
	searchTerm   string
}

func newMatcher(traceID, searchTerm string) matcher {
	m := matcher{
		traceID:    strings.ToLower(traceID),
		searchTerm: strings.ToLower(searchTerm),
	}
	if len(m.traceID) > shortTraceIDLength {
		m.shortTraceID = m.traceID[:shortTraceIDLength]
	}
	return m
}

func (m matcher) matchesTraceID(lowered string) bool {
	if m.traceID == "" {
		return false
	}
	if strings.Contains(lowered, m.traceID) {
		return true
	}
	return m.shortTraceID != "" && strings.Contains(lowered, m.shortTraceID)
}

func (m matcher) matchesSearchTerm(lowered string) bool {
	return m.searchTerm != "" && strings.Contains(lowered, m.searchTerm)
}

func (lc *LogCorrelatorImpl) CorrelateLogs(
	ctx context.Context,
	pods []model.PodTarget,
	window model.Window,
	traceID string,
	searchTerm string,
) map[string]model.PodLogBundle {
	started := lc.now()
	defer func() {
		lc.metrics.CorrelationDuration.Observe(time.Since(started).Seconds())
	}()

	buffered := window.Buffered(lc.config.Buffer)
	m := newMatcher(traceID, searchTerm)
	targets := uniqueTargets(pods)
	keys := resultKeys(targets)

	var mu sync.Mutex
	results := make(map[string]model.PodLogBundle, len(targets))

	g := new(errgroup.Group)
	g.SetLimit(lc.config.MaxConcurrency)
	for _, target := range targets {
		g.Go(func() error {
			bundle, ok := lc.correlatePod(ctx, target, buffered, m)
			if !ok {
				return nil
			}
			mu.Lock()
			results[keys[target]] = bundle
			mu.Unlock()
			return nil
		})
	}
	// tasks never return errors, failures are recorded per unit
	_ = g.Wait()

	lc.logger.Info("Correlated logs",
		zap.String("trace_id", traceID),
		zap.Int("pods_requested", len(targets)),
		zap.Int("pods_returned", len(results)),
	)
	return results
}

type containerResult struct {
	lines []string
	ok    bool
}

func (lc *LogCorrelatorImpl) correlatePod(
	ctx context.Context,
	target model.PodTarget,
	window model.Window,
	m matcher,
) (model.PodLogBundle, bool) {
	containers, err := lc.listContainers(ctx, target)
	if err != nil {
		lc.recordFailure(metrics.UnitPod, &PartialFetchError{Namespace: target.Namespace, Pod: target.PodName, Err: err})
		return model.PodLogBundle{}, false
	}
	lc.metrics.LogFetches.WithLabelValues(metrics.UnitPod, metrics.OutcomeSuccess).Inc()

	if len(containers) == 0 {
		containers = []string{""}
	}
	results := make([]containerResult, len(containers))

	g := new(errgroup.Group)
	g.SetLimit(lc.config.ContainerConcurrency)
	for i, container := range containers {
		g.Go(func() error {
			lines, err := lc.fetchLogs(ctx, target, container)
			if err != nil {
				lc.recordFailure(metrics.UnitContainer, &PartialFetchError{
					Namespace: target.Namespace,
					Pod:       target.PodName,
					Container: container,
					Err:       err,
				})
				return nil
			}
			lc.metrics.LogFetches.WithLabelValues(metrics.UnitContainer, metrics.OutcomeSuccess).Inc()
			results[i] = containerResult{lines: lines, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	bundle := model.PodLogBundle{
		PodName:   target.PodName,
		Namespace: target.Namespace,
		Logs:      []string{},
	}
	fetchedAt := lc.now()
	succeeded := 0
	for i, result := range results {
		if !result.ok {
			continue
		}
		succeeded++
		if containers[i] != "" {
			bundle.Containers = append(bundle.Containers, containers[i])
		}
		for _, line := range result.lines {
			lc.addLine(&bundle, line, containers[i], fetchedAt, window, m)
		}
	}
	if succeeded == 0 {
		return model.PodLogBundle{}, false
	}
	return bundle, true
}

// addLine reads the timestamp from the line as fetched, before the container
// prefix is added. Lines without a timestamp are always kept.
func (lc *LogCorrelatorImpl) addLine(
	bundle *model.PodLogBundle,
	line string,
	container string,
	fetchedAt time.Time,
	window model.Window,
	m matcher,
) {
	parsed := parser.ParseLine(line, fetchedAt)
	if parsed.TimestampParsed && !window.Contains(parsed.Entry.Timestamp) {
		return
	}
	if container != "" {
		bundle.Logs = append(bundle.Logs, fmt.Sprintf("[%s] %s", container, line))
	} else {
		bundle.Logs = append(bundle.Logs, line)
	}
	if parsed.Entry.Level == model.Error {
		bundle.ErrorCount++
	}
	lowered := strings.ToLower(line)
	if m.matchesTraceID(lowered) {
		bundle.HasTraceIDMatch = true
	}
	if m.matchesSearchTerm(lowered) {
		bundle.SearchMatchCount++
	}
}

func (lc *LogCorrelatorImpl) listContainers(ctx context.Context, target model.PodTarget) ([]string, error) {
	fetchCtx, cancel := lc.fetchContext(ctx)
	defer cancel()
	return lc.source.ListContainers(fetchCtx, target.Namespace, target.PodName)
}

func (lc *LogCorrelatorImpl) fetchLogs(ctx context.Context, target model.PodTarget, container string) ([]string, error) {
	fetchCtx, cancel := lc.fetchContext(ctx)
	defer cancel()
	return lc.source.FetchLogs(fetchCtx, target.Namespace, target.PodName, container, lc.config.TailLines)
}

func (lc *LogCorrelatorImpl) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if lc.config.FetchTimeout > 0 {
		return context.WithTimeout(ctx, lc.config.FetchTimeout)
	}
	return context.WithCancel(ctx)
}

func (lc *LogCorrelatorImpl) recordFailure(unit string, err *PartialFetchError) {
	lc.metrics.LogFetches.WithLabelValues(unit, metrics.OutcomeFailure).Inc()
	lc.logger.Warn("Failed to fetch logs, omitting from correlation",
		zap.String("unit", unit),
		zap.String("namespace", err.Namespace),
		zap.String("pod", err.Pod),
		zap.String("container", err.Container),
		zap.Error(err.Err),
	)
}

func uniqueTargets(pods []model.PodTarget) []model.PodTarget {
	seen := make(map[model.PodTarget]struct{}, len(pods))
	targets := make([]model.PodTarget, 0, len(pods))
	for _, pod := range pods {
		key := model.PodTarget{Namespace: pod.Namespace, PodName: pod.PodName}
		if pod.PodName == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		targets = append(targets, pod)
	}
	return targets
}

// resultKeys keys results by pod name, qualifying with the namespace only when
// the same pod name is requested from more than one namespace.
func resultKeys(targets []model.PodTarget) map[model.PodTarget]string {
	counts := make(map[string]int, len(targets))
	for _, target := range targets {
		counts[target.PodName]++
	}
	keys := make(map[model.PodTarget]string, len(targets))
	for _, target := range targets {
		if counts[target.PodName] > 1 {
			keys[target] = target.Namespace + "/" + target.PodName
		} else {
			keys[target] = target.PodName
		}
	}
	return keys
}

// RankBundles orders bundles for display: trace id matches first, then search
// matches, then error count, then pod name.
func RankBundles(bundles map[string]model.PodLogBundle) []model.PodLogBundle {
	ranked := make([]model.PodLogBundle, 0, len(bundles))
	for _, bundle := range bundles {
		ranked = append(ranked, bundle)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.HasTraceIDMatch != b.HasTraceIDMatch {
			return a.HasTraceIDMatch
		}
		if a.SearchMatchCount != b.SearchMatchCount {
			return a.SearchMatchCount > b.SearchMatchCount
		}
		if a.ErrorCount != b.ErrorCount {
			return a.ErrorCount > b.ErrorCount
		}
		if a.PodName != b.PodName {
			return a.PodName < b.PodName
		}
		return a.Namespace < b.Namespace
	})
	return ranked
}
