package service

import (
	"errors"
	"math"
	"sort"

	"github.com/amitngm/openlens-sub001/internal/flow/model"
	spanModel "github.com/amitngm/openlens-sub001/internal/otel_server/trace/model"
	"github.com/google/uuid"
)

var flowNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("openlens.flow"))

type nodeAccumulator struct {
	node      model.FlowNode
	durations []int64
}

type edgeAccumulator struct {
	edge model.FlowEdge
}

// BuildFlow reconstructs the call graph of one trace. Spans whose parent is not
// part of the input are treated as additional roots.
func BuildFlow(spans []spanModel.Span) (model.FlowGraph, error) {
	if len(spans) == 0 {
		return model.FlowGraph{}, ErrEmptyTrace
	}

	sequence := orderSpans(spans)
	spansByID := make(map[string]spanModel.Span, len(sequence))
	for _, span := range sequence {
		spansByID[span.SpanID] = span
	}

	var roots []spanModel.Span
	nodeOrder := make([]string, 0)
	nodes := make(map[string]*nodeAccumulator)
	edgeOrder := make([]string, 0)
	edges := make(map[string]*edgeAccumulator)
	errorCount := 0

	for _, span := range sequence {
		nodeID := nodeIDForSpan(span)
		acc, ok := nodes[nodeID]
		if !ok {
			acc = &nodeAccumulator{node: newFlowNode(nodeID, span)}
			nodes[nodeID] = acc
			nodeOrder = append(nodeOrder, nodeID)
		}
		acc.durations = append(acc.durations, span.Duration)
		acc.node.Metrics.RequestCount++
		if span.IsError() {
			acc.node.Metrics.ErrorCount++
			errorCount++
		}
		if acc.node.Service.Version == "" {
			acc.node.Service.Version = span.Attributes[spanModel.ServiceVersionAttribute]
		}

		parent, resolved := spansByID[span.ParentSpanID]
		if span.IsRoot() || !resolved {
			roots = append(roots, span)
			continue
		}
		parentNodeID := nodeIDForSpan(parent)
		if parentNodeID == nodeID {
			continue
		}
		key := parentNodeID + "|" + nodeID
		edge, ok := edges[key]
		if !ok {
			edge = &edgeAccumulator{edge: model.FlowEdge{From: parentNodeID, To: nodeID}}
			edges[key] = edge
			edgeOrder = append(edgeOrder, key)
		}
		edge.add(span)
	}

	flowNodes := make([]model.FlowNode, 0, len(nodeOrder))
	for _, id := range nodeOrder {
		flowNodes = append(flowNodes, nodes[id].finish())
	}

	flowEdges := make([]model.FlowEdge, 0, len(edgeOrder))
	for _, key := range edgeOrder {
		flowEdges = append(flowEdges, edges[key].edge)
	}
	sort.Slice(flowEdges, func(i, j int) bool {
		if flowEdges[i].From != flowEdges[j].From {
			return flowEdges[i].From < flowEdges[j].From
		}
		return flowEdges[i].To < flowEdges[j].To
	})

	// a parent cycle leaves no root, fall back to the earliest span
	if len(roots) == 0 {
		roots = sequence[:1]
	}
	startTime, endTime := flowBounds(sequence, roots)
	primaryRoot := roots[0]
	traceID := primaryRoot.TraceID

	return model.FlowGraph{
		FlowID:        FlowIDForTrace(traceID),
		TraceID:       traceID,
		OperationName: primaryRoot.OperationName,
		UIEvent:       primaryRoot.Attributes[spanModel.UIEventAttribute],
		StartTime:     startTime,
		EndTime:       endTime,
		Duration:      endTime - startTime,
		Nodes:         flowNodes,
		Edges:         flowEdges,
		SpanSequence:  sequence,
		Metadata:      buildMetadata(sequence, errorCount),
	}, nil
}

// FlowIDForTrace derives a stable flow id so that rebuilding a trace yields the same id.
func FlowIDForTrace(traceID string) string {
	return uuid.NewSHA1(flowNamespace, []byte(traceID)).String()
}

func orderSpans(spans []spanModel.Span) []spanModel.Span {
	seen := make(map[string]struct{}, len(spans))
	sequence := make([]spanModel.Span, 0, len(spans))
	for _, span := range spans {
		if _, ok := seen[span.SpanID]; ok {
			continue
		}
		seen[span.SpanID] = struct{}{}
		sequence = append(sequence, span)
	}
	sort.Slice(sequence, func(i, j int) bool {
		if sequence[i].StartTime != sequence[j].StartTime {
			return sequence[i].StartTime < sequence[j].StartTime
		}
		return sequence[i].SpanID < sequence[j].SpanID
	})
	return sequence
}

func nodeIDForSpan(span spanModel.Span) string {
	return model.NodeID(span.Namespace, span.ServiceName, podName(span))
}

func podName(span spanModel.Span) string {
	if span.PodName == "" {
		return spanModel.UnknownPod
	}
	return span.PodName
}

func newFlowNode(id string, span spanModel.Span) model.FlowNode {
	return model.FlowNode{
		ID: id,
		Service: model.ServiceRef{
			Name:      span.ServiceName,
			Namespace: span.Namespace,
			Pod:       podName(span),
		},
	}
}

func (n *nodeAccumulator) finish() model.FlowNode {
	node := n.node
	sorted := make([]int64, len(n.durations))
	copy(sorted, n.durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total float64
	for _, d := range sorted {
		total += float64(d)
	}
	node.Metrics.AvgLatency = total / float64(len(sorted))
	node.Metrics.P50 = nearestRank(sorted, 50)
	node.Metrics.P95 = nearestRank(sorted, 95)
	node.Metrics.P99 = nearestRank(sorted, 99)
	node.Status = model.StatusFor(node.Metrics.RequestCount, node.Metrics.ErrorCount)
	return node
}

func (e *edgeAccumulator) add(child spanModel.Span) {
	e.edge.CallCount++
	if child.IsError() {
		e.edge.ErrorCount++
	}
	e.edge.AvgLatency += (float64(child.Duration) - e.edge.AvgLatency) / float64(e.edge.CallCount)
	e.edge.ErrorRate = float64(e.edge.ErrorCount) / float64(e.edge.CallCount)
}

// nearestRank expects sorted values and returns the smallest value such that
// at least p percent of the values are less than or equal to it.
func nearestRank(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func flowBounds(sequence []spanModel.Span, roots []spanModel.Span) (int64, int64) {
	if len(roots) == 1 {
		return roots[0].StartTime, roots[0].EndTime()
	}
	start := sequence[0].StartTime
	end := sequence[0].EndTime()
	for _, span := range sequence[1:] {
		if span.StartTime < start {
			start = span.StartTime
		}
		if span.EndTime() > end {
			end = span.EndTime()
		}
	}
	return start, end
}

func buildMetadata(sequence []spanModel.Span, errorCount int) model.FlowMetadata {
	servicesByNamespace := make(map[string]map[string]struct{})
	for _, span := range sequence {
		services, ok := servicesByNamespace[span.Namespace]
		if !ok {
			services = make(map[string]struct{})
			servicesByNamespace[span.Namespace] = services
		}
		services[span.ServiceName] = struct{}{}
	}

	namespaces := make([]string, 0, len(servicesByNamespace))
	sortedServices := make(map[string][]string, len(servicesByNamespace))
	serviceCount := 0
	for namespace, services := range servicesByNamespace {
		namespaces = append(namespaces, namespace)
		names := make([]string, 0, len(services))
		for name := range services {
			names = append(names, name)
		}
		sort.Strings(names)
		sortedServices[namespace] = names
		serviceCount += len(names)
	}
	sort.Strings(namespaces)

	return model.FlowMetadata{
		TotalSpans:          len(sequence),
		ServiceCount:        serviceCount,
		ErrorCount:          errorCount,
		Namespaces:          namespaces,
		ServicesByNamespace: sortedServices,
	}
}

var (
	ErrEmptyTrace = errors.New("trace contains no spans")
)
