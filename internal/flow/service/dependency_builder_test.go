package service

import (
	"testing"

	"github.com/amitngm/openlens-sub001/internal/flow/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDependencies(t *testing.T) {
	t.Run("should return an empty graph for no flows", func(t *testing.T) {
		graph := BuildDependencies(nil, "")
		assert.Empty(t, graph.Nodes)
		assert.Empty(t, graph.Edges)
	})

	t.Run("should collapse pods into services and weight average latency by calls", func(t *testing.T) {
		first := flowWithEdge("shop", "frontend", "pod-a1", "shop", "cart", "pod-c1", 1, 100)
		second := flowWithEdge("shop", "frontend", "pod-a2", "shop", "cart", "pod-c2", 3, 200)

		graph := BuildDependencies([]model.FlowGraph{first, second}, "")

		require.Len(t, graph.Nodes, 2)
		assert.Equal(t, model.ServiceRef{Name: "cart", Namespace: "shop"}, graph.Nodes[0])
		assert.Equal(t, model.ServiceRef{Name: "frontend", Namespace: "shop"}, graph.Nodes[1])
		require.Len(t, graph.Edges, 1)
		assert.Equal(t, "shop/frontend", graph.Edges[0].From)
		assert.Equal(t, "shop/cart", graph.Edges[0].To)
		assert.Equal(t, 4, graph.Edges[0].CallCount)
		assert.Equal(t, 175.0, graph.Edges[0].AvgLatency)
	})

	t.Run("should produce the same graph for any flow order", func(t *testing.T) {
		flows := []model.FlowGraph{
			flowWithEdge("shop", "frontend", "a", "shop", "cart", "b", 3, 10.1),
			flowWithEdge("shop", "frontend", "a", "shop", "cart", "c", 7, 33.3),
			flowWithEdge("shop", "cart", "b", "billing", "payment", "d", 2, 71.7),
			flowWithEdge("shop", "frontend", "a", "shop", "cart", "b", 5, 12.9),
		}
		reversed := []model.FlowGraph{flows[3], flows[2], flows[1], flows[0]}
		shuffled := []model.FlowGraph{flows[1], flows[3], flows[0], flows[2]}

		expected := BuildDependencies(flows, "")
		assert.Equal(t, expected, BuildDependencies(reversed, ""))
		assert.Equal(t, expected, BuildDependencies(shuffled, ""))
	})

	t.Run("should keep only services and edges inside the namespace filter", func(t *testing.T) {
		flows := []model.FlowGraph{
			flowWithEdge("shop", "frontend", "a", "shop", "cart", "b", 1, 10),
			flowWithEdge("shop", "cart", "b", "billing", "payment", "c", 1, 10),
		}
		graph := BuildDependencies(flows, "shop")

		require.Len(t, graph.Nodes, 2)
		for _, node := range graph.Nodes {
			assert.Equal(t, "shop", node.Namespace)
		}
		require.Len(t, graph.Edges, 1)
		assert.Equal(t, "shop/frontend", graph.Edges[0].From)
	})

	t.Run("should drop edges between pods of the same service", func(t *testing.T) {
		flow := flowWithEdge("shop", "cart", "pod-1", "shop", "cart", "pod-2", 4, 10)
		graph := BuildDependencies([]model.FlowGraph{flow}, "")

		assert.Len(t, graph.Nodes, 1)
		assert.Empty(t, graph.Edges)
	})
}

func flowWithEdge(
	fromNamespace, fromService, fromPod string,
	toNamespace, toService, toPod string,
	callCount int,
	avgLatency float64,
) model.FlowGraph {
	from := model.FlowNode{
		ID:      model.NodeID(fromNamespace, fromService, fromPod),
		Service: model.ServiceRef{Name: fromService, Namespace: fromNamespace, Pod: fromPod},
	}
	to := model.FlowNode{
		ID:      model.NodeID(toNamespace, toService, toPod),
		Service: model.ServiceRef{Name: toService, Namespace: toNamespace, Pod: toPod},
	}
	return model.FlowGraph{
		Nodes: []model.FlowNode{from, to},
		Edges: []model.FlowEdge{{From: from.ID, To: to.ID, CallCount: callCount, AvgLatency: avgLatency}},
	}
}
