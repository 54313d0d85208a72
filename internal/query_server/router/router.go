package router

import (
	"context"
	"net/http"

	flowService "github.com/amitngm/openlens-sub001/internal/flow/service"
	"github.com/amitngm/openlens-sub001/internal/logs/source"
	logService "github.com/amitngm/openlens-sub001/internal/logs/service"
	"github.com/amitngm/openlens-sub001/internal/query_server/handler"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func CreateRouter(
	ctx context.Context,
	flowSource flowService.FlowSource,
	logCorrelator logService.LogCorrelator,
	cluster source.ClusterSource,
	healthCheck handler.HealthCheck,
	selector handler.NamespaceSelector,
	snapshot handler.SnapshotReader,
	session handler.SearchSession,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := mux.NewRouter()

	// fixed paths are registered before /flows/{traceId} so they are not taken as ids
	r.Handle("/flows", handler.FlowsHandler(ctx, flowSource, logger)).Methods("GET")
	r.Handle("/flows/operations", handler.OperationsHandler(ctx, flowSource, logger)).Methods("GET")
	r.Handle("/flows/dependencies", handler.DependenciesHandler(ctx, flowSource, logger)).Methods("GET")
	r.Handle("/flows/collect", handler.CollectHandler(ctx, flowSource, logger)).Methods("POST")
	r.Handle("/flows/{traceId}", handler.FlowHandler(ctx, flowSource, logger)).Methods("GET")
	r.Handle(
		"/flows/{traceId}/logs", handler.FlowLogsHandler(
			ctx,
			flowSource,
			logCorrelator,
			logger,
		),
	).Methods("POST")

	r.Handle("/search", handler.SearchHandler(ctx, flowSource, cluster, logger)).Methods("POST")
	r.Handle("/search/session", handler.SessionUpdateHandler(ctx, session, logger)).Methods("PUT")
	r.Handle("/search/session", handler.SessionResultHandler(ctx, session, logger)).Methods("GET")
	r.Handle("/snapshot", handler.SnapshotHandler(ctx, selector, snapshot, logger)).Methods("GET")
	r.Handle("/snapshot/namespace", handler.NamespaceHandler(ctx, selector, logger)).Methods("PUT")
	r.Handle("/deployments", handler.DeploymentsHandler(ctx, cluster, logger)).Methods("GET")
	r.Handle("/health", handler.HealthHandler(ctx, healthCheck, logger)).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	return r
}
