package service

import (
	"time"

	flowModel "github.com/amitngm/openlens-sub001/internal/flow/model"
	"github.com/amitngm/openlens-sub001/internal/logs/model"
	spanModel "github.com/amitngm/openlens-sub001/internal/otel_server/trace/model"
)

// TargetsForFlow lists the pods that served flow, in node order. Nodes without
// a known pod have no logs to read and are skipped. A non-empty namespace keeps
// only the pods in it.
func TargetsForFlow(flow flowModel.FlowGraph, namespace string) []model.PodTarget {
	targets := make([]model.PodTarget, 0, len(flow.Nodes))
	for _, node := range flow.Nodes {
		if node.Service.Pod == "" || node.Service.Pod == spanModel.UnknownPod {
			continue
		}
		if namespace != "" && node.Service.Namespace != namespace {
			continue
		}
		targets = append(targets, model.PodTarget{
			Namespace:   node.Service.Namespace,
			PodName:     node.Service.Pod,
			ServiceName: node.Service.Name,
		})
	}
	return targets
}

// WindowForFlow is the unbuffered time range of flow.
func WindowForFlow(flow flowModel.FlowGraph) model.Window {
	return model.Window{
		Start: time.Unix(0, flow.StartTime).UTC(),
		End:   time.Unix(0, flow.EndTime).UTC(),
	}
}
