package handler

import (
	"context"
	"encoding/json"
	"net/http"

	flowModel "github.com/amitngm/openlens-sub001/internal/flow/model"
	flowService "github.com/amitngm/openlens-sub001/internal/flow/service"
	"github.com/amitngm/openlens-sub001/internal/logs/source"
	searchService "github.com/amitngm/openlens-sub001/internal/search/service"
	"go.uber.org/zap"
)

// SearchHandler creates a handler for searching flows and pods.
// @Summary Search flows and pods by free text.
// @Tags search
// @Accept json
// @Produce json
// @Param search body SearchRequestDTO true "The term, an optional namespace, and optional log content"
// @Success 200 {object} SearchResponseDTO "Matching flows oldest first and matching pods"
// @Failure 400 {object} ErrorMessage "Invalid request payload"
// @Failure 503 {object} ErrorMessage "Flow data unavailable"
// @Router /search [post]
func SearchHandler(
	ctx context.Context,
	fs flowService.FlowSource,
	pl source.PodLister,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer closeBody(r.Body, logger)

		var req SearchRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("Error encountered when decoding request body", zap.Error(err))
			HttpError(w, "Invalid request payload", http.StatusBadRequest, logger)
			return
		}

		flows, err := fs.GetFlows(r.Context(), flowModel.FlowQuery{Namespace: req.Namespace})
		if err != nil {
			logger.Error("Error encountered when getting flows for search", zap.Error(err))
			status, message := flowErrorStatus(err)
			HttpError(w, message, status, logger)
			return
		}

		// pods are optional here, a search still covers flows without them
		pods, err := pl.ListPods(r.Context(), req.Namespace)
		if err != nil {
			logger.Warn("Failed to list pods for search", zap.String("namespace", req.Namespace), zap.Error(err))
			pods = nil
		}

		result := searchService.Search(flows, pods, req.Logs, req.Term, req.Namespace)
		writeJSON(w, http.StatusOK, SearchResponseDTO{
			MatchingFlows: result.MatchingFlows,
			MatchingPods:  result.MatchingPods,
		}, logger)
	}
}

// DeploymentsHandler creates a handler for listing deployments.
// @Summary List the deployments of a namespace.
// @Tags cluster
// @Produce json
// @Param namespace query string false "Namespace, all namespaces when empty"
// @Success 200 {object} DeploymentsResponseDTO "Deployments"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /deployments [get]
func DeploymentsHandler(
	ctx context.Context,
	dl source.DeploymentLister,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deployments, err := dl.ListDeployments(r.Context(), r.URL.Query().Get("namespace"))
		if err != nil {
			logger.Error("Error encountered when listing deployments", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		writeJSON(w, http.StatusOK, DeploymentsResponseDTO{Deployments: deployments}, logger)
	}
}
