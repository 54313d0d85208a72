package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/amitngm/openlens-sub001/internal/clients/tracing"
	flowModel "github.com/amitngm/openlens-sub001/internal/flow/model"
	flowService "github.com/amitngm/openlens-sub001/internal/flow/service"
	logModel "github.com/amitngm/openlens-sub001/internal/logs/model"
)

const flowUnavailableMessage = "flow data unavailable"

func parseFlowQuery(values url.Values) (flowModel.FlowQuery, error) {
	query := flowModel.FlowQuery{
		Operation: values.Get("operation"),
		Namespace: values.Get("namespace"),
	}
	var err error
	if query.StartTime, err = optionalInt64(values, "startTime"); err != nil {
		return flowModel.FlowQuery{}, err
	}
	if query.EndTime, err = optionalInt64(values, "endTime"); err != nil {
		return flowModel.FlowQuery{}, err
	}
	limit, err := optionalInt64(values, "limit")
	if err != nil {
		return flowModel.FlowQuery{}, err
	}
	query.Limit = int(limit)
	return query, nil
}

func optionalInt64(values url.Values, key string) (int64, error) {
	raw := values.Get(key)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return value, nil
}

// flowErrorStatus maps a flow source error to a response status and message.
func flowErrorStatus(err error) (int, string) {
	switch {
	case tracing.IsUnavailable(err):
		return http.StatusServiceUnavailable, flowUnavailableMessage
	case errors.Is(err, flowService.ErrEmptyTrace), errors.Is(err, tracing.ErrNotFound):
		return http.StatusNotFound, "Flow not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func toOperationsDTO(names []string) OperationsResponseDTO {
	operations := make([]OperationDTO, 0, len(names))
	for _, name := range names {
		operations = append(operations, OperationDTO{Name: name})
	}
	return OperationsResponseDTO{Operations: operations}
}

func toPodTargets(dtos []PodTargetDTO) []logModel.PodTarget {
	targets := make([]logModel.PodTarget, 0, len(dtos))
	for _, dto := range dtos {
		targets = append(targets, logModel.PodTarget{
			Namespace:   dto.Namespace,
			PodName:     dto.PodName,
			ServiceName: dto.ServiceName,
		})
	}
	return targets
}

// toSnapshotDTO only reports refreshed data for the selected namespace, so a
// refresh still in flight for the previous namespace is not shown.
func toSnapshotDTO(namespace string, snapshot SnapshotReader) SnapshotResponseDTO {
	dto := SnapshotResponseDTO{Namespace: namespace, Flows: []flowModel.FlowGraph{}}
	if flows := snapshot.Flows(); flows.Namespace == namespace && namespace != "" {
		dto.Flows = flows.Flows
	}
	if deps := snapshot.Dependencies(); deps.Namespace == namespace && namespace != "" {
		dto.Dependencies = deps.Graph
	}
	return dto
}
