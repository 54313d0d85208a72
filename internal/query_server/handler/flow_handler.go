package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	flowService "github.com/amitngm/openlens-sub001/internal/flow/service"
	logService "github.com/amitngm/openlens-sub001/internal/logs/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const collectTimeout = time.Minute

// FlowsHandler creates a handler for listing flows.
// @Summary List flows, most recent first.
// @Tags flows
// @Produce json
// @Param operation query string false "Root operation name"
// @Param namespace query string false "Namespace a flow must touch"
// @Param startTime query int false "Earliest flow start in nanoseconds"
// @Param endTime query int false "Latest flow start in nanoseconds"
// @Param limit query int false "Maximum number of flows"
// @Success 200 {object} FlowListResponseDTO "Matching flows"
// @Failure 400 {object} ErrorMessage "Invalid query"
// @Failure 503 {object} ErrorMessage "Flow data unavailable"
// @Router /flows [get]
func FlowsHandler(
	ctx context.Context,
	fs flowService.FlowSource,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := parseFlowQuery(r.URL.Query())
		if err != nil {
			HttpError(w, err.Error(), http.StatusBadRequest, logger)
			return
		}
		flows, err := fs.GetFlows(r.Context(), query)
		if err != nil {
			logger.Error("Error encountered when getting flows", zap.Error(err))
			status, message := flowErrorStatus(err)
			HttpError(w, message, status, logger)
			return
		}
		writeJSON(w, http.StatusOK, FlowListResponseDTO{Flows: flows}, logger)
	}
}

// FlowHandler creates a handler for getting the flow of one trace.
// @Summary Get the flow of a trace.
// @Tags flows
// @Produce json
// @Param traceId path string true "Trace id"
// @Success 200 {object} model.FlowGraph "The flow"
// @Failure 404 {object} ErrorMessage "Flow not found"
// @Failure 503 {object} ErrorMessage "Flow data unavailable"
// @Router /flows/{traceId} [get]
func FlowHandler(
	ctx context.Context,
	fs flowService.FlowSource,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := mux.Vars(r)["traceId"]
		flow, err := fs.GetFlow(r.Context(), traceID)
		if err != nil {
			logger.Error("Error encountered when getting flow", zap.String("trace_id", traceID), zap.Error(err))
			status, message := flowErrorStatus(err)
			HttpError(w, message, status, logger)
			return
		}
		writeJSON(w, http.StatusOK, flow, logger)
	}
}

// OperationsHandler creates a handler for listing root operations.
// @Summary List the root operations of collected traces.
// @Tags flows
// @Produce json
// @Success 200 {object} OperationsResponseDTO "Known operations"
// @Failure 503 {object} ErrorMessage "Flow data unavailable"
// @Router /flows/operations [get]
func OperationsHandler(
	ctx context.Context,
	fs flowService.FlowSource,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operations, err := fs.GetOperations(r.Context())
		if err != nil {
			logger.Error("Error encountered when getting operations", zap.Error(err))
			status, message := flowErrorStatus(err)
			HttpError(w, message, status, logger)
			return
		}
		writeJSON(w, http.StatusOK, toOperationsDTO(operations), logger)
	}
}

// DependenciesHandler creates a handler for the service dependency graph.
// @Summary Get the service dependency graph.
// @Tags flows
// @Produce json
// @Param namespace query string false "Namespace the graph is restricted to"
// @Success 200 {object} model.ServiceDependencyGraph "The dependency graph"
// @Failure 503 {object} ErrorMessage "Flow data unavailable"
// @Router /flows/dependencies [get]
func DependenciesHandler(
	ctx context.Context,
	fs flowService.FlowSource,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		graph, err := fs.GetDependencies(r.Context(), r.URL.Query().Get("namespace"))
		if err != nil {
			logger.Error("Error encountered when getting dependencies", zap.Error(err))
			status, message := flowErrorStatus(err)
			HttpError(w, message, status, logger)
			return
		}
		writeJSON(w, http.StatusOK, graph, logger)
	}
}

// CollectHandler creates a handler that starts span collection in the background.
// @Summary Pull the spans of a namespace into the span store.
// @Tags flows
// @Accept json
// @Param collect body CollectRequestDTO true "The namespace to collect"
// @Success 202 "Collection started"
// @Failure 400 {object} ErrorMessage "Invalid request payload"
// @Router /flows/collect [post]
func CollectHandler(
	ctx context.Context,
	fs flowService.FlowSource,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer closeBody(r.Body, logger)

		var req CollectRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("Error encountered when decoding request body", zap.Error(err))
			HttpError(w, "Invalid request payload", http.StatusBadRequest, logger)
			return
		}

		go func() {
			collectCtx, cancel := context.WithTimeout(ctx, collectTimeout)
			defer cancel()
			if err := fs.Collect(collectCtx, req.Namespace); err != nil {
				logger.Error("Error encountered when collecting spans",
					zap.String("namespace", req.Namespace),
					zap.Error(err),
				)
			}
		}()
		w.WriteHeader(http.StatusAccepted)
	}
}

// FlowLogsHandler creates a handler that correlates pod logs with a flow.
// @Summary Get the logs written by the pods of a flow while it ran.
// @Tags flows
// @Accept json
// @Produce json
// @Param traceId path string true "Trace id"
// @Param logs body FlowLogsRequestDTO false "Optional search term and pod selection"
// @Success 200 {object} FlowLogsResponseDTO "Correlated logs, most relevant pod first"
// @Failure 404 {object} ErrorMessage "Flow not found"
// @Failure 503 {object} ErrorMessage "Flow data unavailable"
// @Router /flows/{traceId}/logs [post]
func FlowLogsHandler(
	ctx context.Context,
	fs flowService.FlowSource,
	lc logService.LogCorrelator,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer closeBody(r.Body, logger)

		var req FlowLogsRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			logger.Error("Error encountered when decoding request body", zap.Error(err))
			HttpError(w, "Invalid request payload", http.StatusBadRequest, logger)
			return
		}

		traceID := mux.Vars(r)["traceId"]
		flow, err := fs.GetFlow(r.Context(), traceID)
		if err != nil {
			logger.Error("Error encountered when getting flow", zap.String("trace_id", traceID), zap.Error(err))
			status, message := flowErrorStatus(err)
			HttpError(w, message, status, logger)
			return
		}

		targets := logService.TargetsForFlow(flow, req.Namespace)
		if len(req.Pods) > 0 {
			targets = toPodTargets(req.Pods)
		}
		bundles := lc.CorrelateLogs(r.Context(), targets, logService.WindowForFlow(flow), flow.TraceID, req.SearchTerm)

		writeJSON(w, http.StatusOK, FlowLogsResponseDTO{
			TraceID: flow.TraceID,
			Window:  WindowDTO{StartTime: flow.StartTime, EndTime: flow.EndTime},
			Pods:    logService.RankBundles(bundles),
		}, logger)
	}
}

func closeBody(body io.ReadCloser, logger *zap.Logger) {
	if err := body.Close(); err != nil {
		logger.Error("Error encountered when closing request body", zap.Error(err))
	}
}
