package service

import (
	"sort"

	"github.com/amitngm/openlens-sub001/internal/flow/model"
)

type dependencyKey struct {
	from string
	to   string
}

type edgeContribution struct {
	callCount  int
	avgLatency float64
}

// BuildDependencies collapses pods into services and merges the edges of every flow.
// When namespaceFilter is set only services in that namespace, and edges between
// them, are kept. The result does not depend on the order of flows.
func BuildDependencies(flows []model.FlowGraph, namespaceFilter string) model.ServiceDependencyGraph {
	services := make(map[string]model.ServiceRef)
	contributions := make(map[dependencyKey][]edgeContribution)

	for _, flow := range flows {
		serviceByNode := make(map[string]model.ServiceRef, len(flow.Nodes))
		for _, node := range flow.Nodes {
			ref := model.ServiceRef{
				Name:      node.Service.Name,
				Namespace: node.Service.Namespace,
				Version:   node.Service.Version,
			}
			serviceByNode[node.ID] = ref
			if !inNamespace(ref, namespaceFilter) {
				continue
			}
			addService(services, ref)
		}

		for _, edge := range flow.Edges {
			from, okFrom := serviceByNode[edge.From]
			to, okTo := serviceByNode[edge.To]
			if !okFrom || !okTo {
				continue
			}
			if !inNamespace(from, namespaceFilter) || !inNamespace(to, namespaceFilter) {
				continue
			}
			fromID := model.ServiceID(from.Namespace, from.Name)
			toID := model.ServiceID(to.Namespace, to.Name)
			if fromID == toID {
				continue
			}
			key := dependencyKey{from: fromID, to: toID}
			contributions[key] = append(contributions[key], edgeContribution{
				callCount:  edge.CallCount,
				avgLatency: edge.AvgLatency,
			})
		}
	}

	nodes := make([]model.ServiceRef, 0, len(services))
	for _, ref := range services {
		nodes = append(nodes, ref)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return model.ServiceID(nodes[i].Namespace, nodes[i].Name) < model.ServiceID(nodes[j].Namespace, nodes[j].Name)
	})

	edges := make([]model.DependencyEdge, 0, len(contributions))
	for key, parts := range contributions {
		callCount, avgLatency := mergeContributions(parts)
		edges = append(edges, model.DependencyEdge{
			From:       key.from,
			To:         key.to,
			CallCount:  callCount,
			AvgLatency: avgLatency,
		})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	return model.ServiceDependencyGraph{Nodes: nodes, Edges: edges}
}

func inNamespace(ref model.ServiceRef, namespaceFilter string) bool {
	return namespaceFilter == "" || ref.Namespace == namespaceFilter
}

// addService keeps the lowest non-empty version seen for a service.
func addService(services map[string]model.ServiceRef, ref model.ServiceRef) {
	id := model.ServiceID(ref.Namespace, ref.Name)
	existing, ok := services[id]
	if !ok {
		services[id] = ref
		return
	}
	if ref.Version != "" && (existing.Version == "" || ref.Version < existing.Version) {
		existing.Version = ref.Version
		services[id] = existing
	}
}

// mergeContributions folds a call-weighted incremental mean. Contributions are
// sorted first so floating point rounding is the same for any input order.
func mergeContributions(parts []edgeContribution) (int, float64) {
	sorted := make([]edgeContribution, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].callCount != sorted[j].callCount {
			return sorted[i].callCount < sorted[j].callCount
		}
		return sorted[i].avgLatency < sorted[j].avgLatency
	})

	total := 0
	mean := 0.0
	for _, part := range sorted {
		if part.callCount <= 0 {
			continue
		}
		total += part.callCount
		mean += (part.avgLatency - mean) * float64(part.callCount) / float64(total)
	}
	return total, mean
}
