package model

// ServiceDependencyGraph aggregates many flows at service granularity.
// Node and edge identities are "namespace/service".
type ServiceDependencyGraph struct {
	Nodes []ServiceRef     `json:"nodes"`
	Edges []DependencyEdge `json:"edges"`
}

type DependencyEdge struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	CallCount  int     `json:"callCount"`
	AvgLatency float64 `json:"avgLatency"`
}
