package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/amitngm/openlens-sub001/internal/pipeline/refresh"
	searchService "github.com/amitngm/openlens-sub001/internal/search/service"
	"go.uber.org/zap"
)

// NamespaceSelector chooses the namespace that is refreshed in the background.
type NamespaceSelector interface {
	SetNamespace(namespace string)
	Namespace() string
}

type SnapshotReader interface {
	Flows() refresh.FlowsRefreshed
	Dependencies() refresh.DependenciesRefreshed
}

type SearchSession interface {
	Update(namespace, term string)
	Result() searchService.Result
}

// SnapshotHandler creates a handler returning the latest refreshed flows and dependencies.
// @Summary Get the latest background refresh.
// @Tags refresh
// @Produce json
// @Success 200 {object} SnapshotResponseDTO "The refreshed flows and dependencies"
// @Router /snapshot [get]
func SnapshotHandler(
	ctx context.Context,
	selector NamespaceSelector,
	snapshot SnapshotReader,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, toSnapshotDTO(selector.Namespace(), snapshot), logger)
	}
}

// NamespaceHandler creates a handler selecting the refreshed namespace. An
// empty namespace suspends the background refresh.
// @Summary Select the namespace refreshed in the background.
// @Tags refresh
// @Accept json
// @Param namespace body NamespaceRequestDTO true "The namespace"
// @Success 204 "Namespace selected"
// @Failure 400 {object} ErrorMessage "Invalid request payload"
// @Router /snapshot/namespace [put]
func NamespaceHandler(
	ctx context.Context,
	selector NamespaceSelector,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer closeBody(r.Body, logger)

		var req NamespaceRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("Error encountered when decoding request body", zap.Error(err))
			HttpError(w, "Invalid request payload", http.StatusBadRequest, logger)
			return
		}
		selector.SetNamespace(req.Namespace)
		w.WriteHeader(http.StatusNoContent)
	}
}

// SessionUpdateHandler creates a handler that records a search term typed by a user.
// Pod metadata and logs are re-fetched once typing pauses.
// @Summary Update the interactive search term.
// @Tags search
// @Accept json
// @Param search body SessionRequestDTO true "The namespace and term"
// @Success 202 "Search scheduled"
// @Failure 400 {object} ErrorMessage "Invalid request payload"
// @Router /search/session [put]
func SessionUpdateHandler(
	ctx context.Context,
	session SearchSession,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer closeBody(r.Body, logger)

		var req SessionRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("Error encountered when decoding request body", zap.Error(err))
			HttpError(w, "Invalid request payload", http.StatusBadRequest, logger)
			return
		}
		session.Update(req.Namespace, req.Term)
		w.WriteHeader(http.StatusAccepted)
	}
}

// SessionResultHandler creates a handler returning the current interactive search result.
// @Summary Get the interactive search result.
// @Tags search
// @Produce json
// @Success 200 {object} SearchResponseDTO "Matching flows and pods"
// @Router /search/session [get]
func SessionResultHandler(
	ctx context.Context,
	session SearchSession,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := session.Result()
		writeJSON(w, http.StatusOK, SearchResponseDTO{
			MatchingFlows: result.MatchingFlows,
			MatchingPods:  result.MatchingPods,
		}, logger)
	}
}
