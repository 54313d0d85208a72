package store

import (
	"sort"
	"sync"

	"github.com/amitngm/openlens-sub001/internal/otel_server/trace/model"
)

// TraceQuery selects traces from the store. Zero values are unbounded.
type TraceQuery struct {
	Namespace string
	StartTime int64
	EndTime   int64
}

type SpanStore interface {
	// Add stores spans, ignoring ones already present, and returns how many were new.
	Add(spans ...model.Span) int
	Trace(traceID string) []model.Span
	TraceIDs(query TraceQuery) []string
	RootOperations() []string
	SpanCount() int
}

type storedTrace struct {
	spans     []model.Span
	spanIDs   map[string]struct{}
	startTime int64
	endTime   int64
}

// SpanStoreImpl keeps spans grouped by trace in memory. When more than
// maxTraces traces are held the oldest inserted trace is evicted.
type SpanStoreImpl struct {
	mu        sync.RWMutex
	traces    map[string]*storedTrace
	order     []string
	evicted   int
	maxTraces int
	spanCount int
}

func NewSpanStoreImpl(maxTraces int) *SpanStoreImpl {
	return &SpanStoreImpl{
		traces:    make(map[string]*storedTrace),
		maxTraces: maxTraces,
	}
}

func (s *SpanStoreImpl) Add(spans ...model.Span) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, span := range spans {
		trace, ok := s.traces[span.TraceID]
		if !ok {
			trace = &storedTrace{
				spanIDs:   make(map[string]struct{}),
				startTime: span.StartTime,
				endTime:   span.EndTime(),
			}
			s.traces[span.TraceID] = trace
			s.order = append(s.order, span.TraceID)
		}
		if _, dup := trace.spanIDs[span.SpanID]; dup {
			continue
		}
		trace.spanIDs[span.SpanID] = struct{}{}
		trace.spans = append(trace.spans, span)
		if span.StartTime < trace.startTime {
			trace.startTime = span.StartTime
		}
		if span.EndTime() > trace.endTime {
			trace.endTime = span.EndTime()
		}
		s.spanCount++
		added++
	}
	s.evict()
	return added
}

func (s *SpanStoreImpl) evict() {
	if s.maxTraces <= 0 {
		return
	}
	for len(s.order) > s.maxTraces {
		oldest := s.order[0]
		s.order[0] = ""
		s.order = s.order[1:]
		s.evicted++
		if trace, ok := s.traces[oldest]; ok {
			s.spanCount -= len(trace.spans)
			delete(s.traces, oldest)
		}
	}
	// once the evicted prefix outgrows the live ids, move them to a fresh array
	if s.evicted > 0 && s.evicted >= len(s.order) {
		s.order = append(make([]string, 0, 2*len(s.order)), s.order...)
		s.evicted = 0
	}
}

// Trace returns a copy of the spans of a trace, or nil when it is unknown.
func (s *SpanStoreImpl) Trace(traceID string) []model.Span {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trace, ok := s.traces[traceID]
	if !ok {
		return nil
	}
	spans := make([]model.Span, len(trace.spans))
	copy(spans, trace.spans)
	return spans
}

// TraceIDs returns matching trace ids, most recent trace first. A trace matches a
// namespace when any of its spans ran there, and a time range when it overlaps it.
func (s *SpanStoreImpl) TraceIDs(query TraceQuery) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type candidate struct {
		id        string
		startTime int64
	}
	var candidates []candidate
	for id, trace := range s.traces {
		if query.StartTime > 0 && trace.endTime < query.StartTime {
			continue
		}
		if query.EndTime > 0 && trace.startTime > query.EndTime {
			continue
		}
		if query.Namespace != "" && !trace.touches(query.Namespace) {
			continue
		}
		candidates = append(candidates, candidate{id: id, startTime: trace.startTime})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].startTime != candidates[j].startTime {
			return candidates[i].startTime > candidates[j].startTime
		}
		return candidates[i].id < candidates[j].id
	})

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return ids
}

func (t *storedTrace) touches(namespace string) bool {
	for _, span := range t.spans {
		if span.Namespace == namespace {
			return true
		}
	}
	return false
}

// RootOperations lists the distinct operation names of root spans, sorted.
func (s *SpanStoreImpl) RootOperations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, trace := range s.traces {
		for _, span := range trace.spans {
			if span.IsRoot() {
				seen[span.OperationName] = struct{}{}
			}
		}
	}
	operations := make([]string, 0, len(seen))
	for op := range seen {
		operations = append(operations, op)
	}
	sort.Strings(operations)
	return operations
}

func (s *SpanStoreImpl) SpanCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spanCount
}
