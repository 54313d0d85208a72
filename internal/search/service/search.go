package service

import (
	"sort"
	"strings"

	flowModel "github.com/amitngm/openlens-sub001/internal/flow/model"
	logModel "github.com/amitngm/openlens-sub001/internal/logs/model"
)

// partialPrefixLength is how much of a longer term is tried against pod names on
// its own, so a fragment of a generated pod name still finds the pod.
const partialPrefixLength = 3

type Result struct {
	MatchingFlows []flowModel.FlowGraph `json:"matchingFlows"`
	MatchingPods  []logModel.PodInfo    `json:"matchingPods"`
}

// Search filters flows and pods by term. Every field is matched case
// insensitively and a hit on any one field is enough. An empty term matches
// everything. logs holds aggregated log content keyed by pod name.
func Search(
	flows []flowModel.FlowGraph,
	pods []logModel.PodInfo,
	logs map[string]string,
	term string,
	namespace string,
) Result {
	needle := strings.ToLower(strings.TrimSpace(term))

	matchingFlows := make([]flowModel.FlowGraph, 0)
	for _, flow := range flows {
		if needle == "" || flowMatches(flow, needle, namespace) {
			matchingFlows = append(matchingFlows, flow)
		}
	}
	sort.SliceStable(matchingFlows, func(i, j int) bool {
		if matchingFlows[i].StartTime != matchingFlows[j].StartTime {
			return matchingFlows[i].StartTime < matchingFlows[j].StartTime
		}
		return matchingFlows[i].TraceID < matchingFlows[j].TraceID
	})

	matchingPods := make([]logModel.PodInfo, 0)
	for _, pod := range pods {
		if namespace != "" && pod.Namespace != namespace {
			continue
		}
		if needle == "" || podMatches(pod, logs[pod.Name], needle) {
			matchingPods = append(matchingPods, pod)
		}
	}
	sortPodsByFirstRequest(matchingPods, flows)

	return Result{MatchingFlows: matchingFlows, MatchingPods: matchingPods}
}

func contains(value, needle string) bool {
	return value != "" && strings.Contains(strings.ToLower(value), needle)
}

func flowMatches(flow flowModel.FlowGraph, needle string, namespace string) bool {
	if contains(flow.OperationName, needle) || contains(flow.TraceID, needle) || contains(flow.UIEvent, needle) {
		return true
	}
	for _, node := range flow.Nodes {
		if namespace != "" && node.Service.Namespace != namespace {
			continue
		}
		if contains(node.Service.Pod, needle) || contains(node.Service.Name, needle) {
			return true
		}
	}
	for _, span := range flow.SpanSequence {
		if contains(span.PodName, needle) || contains(span.ServiceName, needle) || contains(span.OperationName, needle) {
			return true
		}
	}
	return false
}

func podMatches(pod logModel.PodInfo, logContent string, needle string) bool {
	if contains(pod.Name, needle) || contains(pod.DeploymentName(), needle) || contains(pod.IP, needle) {
		return true
	}
	if len(needle) > partialPrefixLength && contains(pod.Name, needle[:partialPrefixLength]) {
		return true
	}
	for _, container := range pod.Containers {
		if contains(container.Name, needle) || contains(container.Image, needle) {
			return true
		}
	}
	for key, value := range pod.Labels {
		if contains(key, needle) || contains(value, needle) {
			return true
		}
	}
	return contains(logContent, needle)
}

// sortPodsByFirstRequest orders pods by the earliest span they served in any
// flow. Pods that served none go last, ordered by name.
func sortPodsByFirstRequest(pods []logModel.PodInfo, flows []flowModel.FlowGraph) {
	firstSeen := make(map[string]int64)
	for _, flow := range flows {
		for _, span := range flow.SpanSequence {
			key := podKey(span.Namespace, span.PodName)
			if seen, ok := firstSeen[key]; !ok || span.StartTime < seen {
				firstSeen[key] = span.StartTime
			}
		}
	}

	sort.SliceStable(pods, func(i, j int) bool {
		a, aOK := firstSeen[podKey(pods[i].Namespace, pods[i].Name)]
		b, bOK := firstSeen[podKey(pods[j].Namespace, pods[j].Name)]
		switch {
		case aOK && bOK && a != b:
			return a < b
		case aOK != bOK:
			return aOK
		}
		if pods[i].Name != pods[j].Name {
			return pods[i].Name < pods[j].Name
		}
		return pods[i].Namespace < pods[j].Namespace
	})
}

func podKey(namespace, pod string) string {
	return namespace + "/" + pod
}
