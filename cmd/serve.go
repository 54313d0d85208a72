package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/amitngm/openlens-sub001/internal/config"
	logService "github.com/amitngm/openlens-sub001/internal/logs/service"
	"github.com/amitngm/openlens-sub001/internal/metrics"
	traceServer "github.com/amitngm/openlens-sub001/internal/otel_server/trace/server"
	"github.com/amitngm/openlens-sub001/internal/pipeline/refresh"
	"github.com/amitngm/openlens-sub001/internal/query_server/handler"
	"github.com/amitngm/openlens-sub001/internal/query_server/router"
	searchService "github.com/amitngm/openlens-sub001/internal/search/service"
	"github.com/amitngm/openlens-sub001/internal/store"
	"github.com/asaskevich/EventBus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the OTLP receiver, the query API, and the background refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.App)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	cluster, err := newClusterSource(cfg.Kubernetes, logger)
	if err != nil {
		return err
	}
	storage, err := newSpanStorage(cfg.Elasticsearch, logger)
	if err != nil {
		return err
	}
	spanStore := store.NewSpanStoreImpl(cfg.Store.MaxTraces)
	flowSource, err := newFlowSource(cfg, spanStore, storage, logger)
	if err != nil {
		return err
	}

	var healthCheck handler.HealthCheck
	if cfg.Tracing.HealthURL != "" {
		tc := newTracingClient(cfg.Tracing, logger)
		healthCheck = func(ctx context.Context) error {
			return tc.Health(ctx, cfg.Tracing.HealthURL, cfg.Tracing.URL)
		}
	}

	correlator := logService.NewLogCorrelator(cluster, newCorrelatorConfig(cfg.Correlation), m, logger)

	logCache, err := newSearchLogCache(cfg.Search, logger)
	if err != nil {
		return err
	}
	session := searchService.NewSession(
		cluster,
		cluster,
		logCache,
		searchService.SessionConfig{
			PodDelay:       cfg.Search.GetPodDebounceDuration(),
			LogDelay:       cfg.Search.GetLogDebounceDuration(),
			TailLines:      cfg.Search.TailLines,
			MaxConcurrency: cfg.Correlation.MaxConcurrency,
		},
		logger,
	)
	defer session.Close()

	eventBus := EventBus.New()
	snapshot := refresh.NewSnapshot(logger)
	snapshot.OnFlows(session.SetFlows)
	if err := snapshot.Subscribe(eventBus); err != nil {
		return err
	}
	refresher := refresh.NewRefresher(flowSource, eventBus, refresh.Config{
		FlowInterval:       cfg.Refresh.GetFlowIntervalDuration(),
		DependencyInterval: cfg.Refresh.GetDependencyIntervalDuration(),
		FlowLimit:          cfg.Refresh.FlowLimit,
	}, logger)
	refresher.SetNamespace(cfg.Refresh.Namespace)
	refreshCleanup, err := refresher.Start()
	if err != nil {
		return fmt.Errorf("failed to start refresher: %w", err)
	}
	defer refreshCleanup()

	var grpcServer *grpc.Server
	if cfg.OTLP.Enabled {
		listener, err := net.Listen("tcp", cfg.OTLP.ListenAddress)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.OTLP.ListenAddress, err)
		}
		grpcServer = grpc.NewServer()
		protoTrace.RegisterTraceServiceServer(
			grpcServer,
			traceServer.NewTraceServiceServerImpl(spanStore, storage.writeBuffer, m, logger),
		)
		go func() {
			logger.Info("gRPC service started, listening for OpenTelemetry traces", zap.String("address", cfg.OTLP.ListenAddress))
			if err := grpcServer.Serve(listener); err != nil {
				logger.Error("Failed to serve gRPC", zap.Error(err))
			}
		}()
	}

	r := router.CreateRouter(
		ctx,
		flowSource,
		correlator,
		cluster,
		healthCheck,
		refresher,
		snapshot,
		session,
		reg,
		logger,
	)
	httpServer := &http.Server{Addr: cfg.App.Address(), Handler: r}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting query server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to serve HTTP: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down query server", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if storage.writeBuffer != nil {
		if err := storage.writeBuffer.Flush(shutdownCtx); err != nil {
			logger.Error("Failed to flush spans on shutdown", zap.Error(err))
		}
	}
	return nil
}
