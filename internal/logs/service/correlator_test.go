package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amitngm/openlens-sub001/internal/logs/model"
	"github.com/amitngm/openlens-sub001/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePodLogSource struct {
	containers     map[string][]string
	logs           map[string][]string
	failPods       map[string]bool
	failContainers map[string]bool
	delay          time.Duration

	inFlight    int32
	maxInFlight int32
	mu          sync.Mutex
	fetches     []string
}

func (f *fakePodLogSource) ListContainers(ctx context.Context, namespace, pod string) ([]string, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxInFlight)
		if current <= seen || atomic.CompareAndSwapInt32(&f.maxInFlight, seen, current) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failPods[pod] {
		return nil, errors.New("connection refused")
	}
	return f.containers[pod], nil
}

func (f *fakePodLogSource) FetchLogs(_ context.Context, namespace, pod, container string, _ int) ([]string, error) {
	key := pod + "/" + container
	f.mu.Lock()
	f.fetches = append(f.fetches, key)
	f.mu.Unlock()
	if f.failContainers[key] {
		return nil, errors.New("container not running")
	}
	return f.logs[key], nil
}

var windowStart = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
var windowEnd = windowStart.Add(2 * time.Second)

func stamp(offset time.Duration, msg string) string {
	return fmt.Sprintf("%s %s", windowEnd.Add(offset).Format(time.RFC3339Nano), msg)
}

func newTestCorrelator(src *fakePodLogSource, cfg CorrelatorConfig) (*LogCorrelatorImpl, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return NewLogCorrelator(src, cfg, m, zap.NewNop()), m
}

func TestLogCorrelatorImpl_CorrelateLogs(t *testing.T) {
	ctx := context.Background()
	window := model.Window{Start: windowStart, End: windowEnd}
	traceID := "4bf92f3577b34da6a3ce929d0e0e4736"

	t.Run("should keep lines inside the buffered window and lines without timestamps", func(t *testing.T) {
		src := &fakePodLogSource{
			logs: map[string][]string{
				"cart-1/": {
					stamp(10*time.Second, "too late"),
					stamp(4*time.Second, "just in time"),
					stamp(-8*time.Second, "too early"),
					"no timestamp here",
				},
			},
		}
		c, _ := newTestCorrelator(src, DefaultCorrelatorConfig())

		res := c.CorrelateLogs(ctx, []model.PodTarget{{Namespace: "shop", PodName: "cart-1"}}, window, "", "")

		require.Contains(t, res, "cart-1")
		assert.Equal(t, []string{stamp(4*time.Second, "just in time"), "no timestamp here"}, res["cart-1"].Logs)
		assert.Empty(t, res["cart-1"].Containers)
	})

	t.Run("should prefix container lines and count errors and matches", func(t *testing.T) {
		src := &fakePodLogSource{
			containers: map[string][]string{"checkout-1": {"app", "envoy"}},
			logs: map[string][]string{
				"checkout-1/app": {
					stamp(0, "payment failed trace="+traceID[:16]),
					stamp(0, "order placed"),
				},
				"checkout-1/envoy": {
					stamp(0, "POST /pay 503 ORDER"),
				},
			},
		}
		c, _ := newTestCorrelator(src, DefaultCorrelatorConfig())

		res := c.CorrelateLogs(ctx, []model.PodTarget{{Namespace: "shop", PodName: "checkout-1"}}, window, traceID, "order")

		bundle := res["checkout-1"]
		assert.Equal(t, "shop", bundle.Namespace)
		assert.Equal(t, []string{
			"[app] " + stamp(0, "payment failed trace="+traceID[:16]),
			"[app] " + stamp(0, "order placed"),
			"[envoy] " + stamp(0, "POST /pay 503 ORDER"),
		}, bundle.Logs)
		assert.Equal(t, 2, bundle.ErrorCount)
		assert.True(t, bundle.HasTraceIDMatch)
		assert.Equal(t, 2, bundle.SearchMatchCount)
		assert.Equal(t, []string{"app", "envoy"}, bundle.Containers)
	})

	t.Run("should match the full trace id case insensitively", func(t *testing.T) {
		src := &fakePodLogSource{logs: map[string][]string{
			"a/": {"trace_id=" + "4BF92F3577B34DA6A3CE929D0E0E4736"},
			"b/": {"unrelated"},
		}}
		c, _ := newTestCorrelator(src, DefaultCorrelatorConfig())

		res := c.CorrelateLogs(ctx, []model.PodTarget{{Namespace: "shop", PodName: "a"}, {Namespace: "shop", PodName: "b"}}, window, traceID, "")

		assert.True(t, res["a"].HasTraceIDMatch)
		assert.False(t, res["b"].HasTraceIDMatch)
	})

	t.Run("should omit failed pods and pods whose containers all failed", func(t *testing.T) {
		src := &fakePodLogSource{
			containers: map[string][]string{
				"ok":      {"app"},
				"partial": {"app", "sidecar"},
				"dead":    {"app"},
			},
			logs: map[string][]string{
				"ok/app":      {"hello"},
				"partial/app": {"hello"},
			},
			failPods:       map[string]bool{"down": true},
			failContainers: map[string]bool{"partial/sidecar": true, "dead/app": true},
		}
		c, m := newTestCorrelator(src, DefaultCorrelatorConfig())

		pods := []model.PodTarget{
			{Namespace: "shop", PodName: "ok"},
			{Namespace: "shop", PodName: "partial"},
			{Namespace: "shop", PodName: "dead"},
			{Namespace: "shop", PodName: "down"},
		}
		res := c.CorrelateLogs(ctx, pods, window, "", "")

		assert.Len(t, res, 2)
		assert.Contains(t, res, "ok")
		assert.Contains(t, res, "partial")
		assert.Equal(t, []string{"app"}, res["partial"].Containers)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.LogFetches.WithLabelValues(metrics.UnitPod, metrics.OutcomeFailure)))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.LogFetches.WithLabelValues(metrics.UnitContainer, metrics.OutcomeFailure)))
	})

	t.Run("should return an empty map when every pod fails", func(t *testing.T) {
		src := &fakePodLogSource{failPods: map[string]bool{"a": true, "b": true}}
		c, _ := newTestCorrelator(src, DefaultCorrelatorConfig())

		res := c.CorrelateLogs(ctx, []model.PodTarget{{Namespace: "shop", PodName: "a"}, {Namespace: "shop", PodName: "b"}}, window, "", "")

		assert.NotNil(t, res)
		assert.Empty(t, res)
	})

	t.Run("should never exceed the configured concurrency", func(t *testing.T) {
		src := &fakePodLogSource{delay: 20 * time.Millisecond}
		cfg := DefaultCorrelatorConfig()
		cfg.MaxConcurrency = 3
		c, _ := newTestCorrelator(src, cfg)

		var pods []model.PodTarget
		for i := 0; i < 12; i++ {
			pods = append(pods, model.PodTarget{Namespace: "shop", PodName: fmt.Sprintf("pod-%d", i)})
		}
		res := c.CorrelateLogs(ctx, pods, window, "", "")

		assert.Len(t, res, 12)
		assert.LessOrEqual(t, atomic.LoadInt32(&src.maxInFlight), int32(3))
	})

	t.Run("should treat a fetch timeout as a failure of that pod only", func(t *testing.T) {
		src := &fakePodLogSource{delay: 200 * time.Millisecond}
		cfg := DefaultCorrelatorConfig()
		cfg.FetchTimeout = 10 * time.Millisecond
		c, _ := newTestCorrelator(src, cfg)

		res := c.CorrelateLogs(ctx, []model.PodTarget{{Namespace: "shop", PodName: "slow"}}, window, "", "")
		assert.Empty(t, res)
	})

	t.Run("should return identical bundles for identical inputs", func(t *testing.T) {
		src := &fakePodLogSource{
			containers: map[string][]string{"p": {"a", "b", "c"}},
			logs: map[string][]string{
				"p/a": {"one"},
				"p/b": {"two error"},
				"p/c": {"three"},
			},
		}
		c, _ := newTestCorrelator(src, DefaultCorrelatorConfig())
		pods := []model.PodTarget{{Namespace: "shop", PodName: "p"}}

		first := c.CorrelateLogs(ctx, pods, window, traceID, "two")
		second := c.CorrelateLogs(ctx, pods, window, traceID, "two")
		assert.Equal(t, first, second)
	})

	t.Run("should qualify pod names shared across namespaces", func(t *testing.T) {
		src := &fakePodLogSource{logs: map[string][]string{"api-1/": {"hi"}}}
		c, _ := newTestCorrelator(src, DefaultCorrelatorConfig())

		res := c.CorrelateLogs(ctx, []model.PodTarget{
			{Namespace: "blue", PodName: "api-1"},
			{Namespace: "green", PodName: "api-1"},
			{Namespace: "green", PodName: "api-1"},
		}, window, "", "")

		assert.Len(t, res, 2)
		assert.Contains(t, res, "blue/api-1")
		assert.Contains(t, res, "green/api-1")
	})
}

func TestRankBundles(t *testing.T) {
	t.Run("should rank trace matches, then search matches, then errors", func(t *testing.T) {
		ranked := RankBundles(map[string]model.PodLogBundle{
			"a": {PodName: "a", ErrorCount: 5},
			"b": {PodName: "b", HasTraceIDMatch: true},
			"c": {PodName: "c", SearchMatchCount: 2},
			"d": {PodName: "d", ErrorCount: 5},
		})
		names := make([]string, 0, len(ranked))
		for _, bundle := range ranked {
			names = append(names, bundle.PodName)
		}
		assert.Equal(t, []string{"b", "c", "a", "d"}, names)
	})
}
