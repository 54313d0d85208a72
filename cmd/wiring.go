package cmd

import (
	"fmt"

	"github.com/amitngm/openlens-sub001/internal/cache"
	"github.com/amitngm/openlens-sub001/internal/clients/kube"
	"github.com/amitngm/openlens-sub001/internal/clients/kubeproxy"
	"github.com/amitngm/openlens-sub001/internal/clients/tracing"
	"github.com/amitngm/openlens-sub001/internal/config"
	"github.com/amitngm/openlens-sub001/internal/db/elasticsearch/bootstrapper"
	"github.com/amitngm/openlens-sub001/internal/db/elasticsearch/client"
	"github.com/amitngm/openlens-sub001/internal/db/elasticsearch/repository"
	flowModel "github.com/amitngm/openlens-sub001/internal/flow/model"
	flowService "github.com/amitngm/openlens-sub001/internal/flow/service"
	"github.com/amitngm/openlens-sub001/internal/logs/source"
	searchService "github.com/amitngm/openlens-sub001/internal/search/service"
	logService "github.com/amitngm/openlens-sub001/internal/logs/service"
	spanModel "github.com/amitngm/openlens-sub001/internal/otel_server/trace/model"
	"github.com/amitngm/openlens-sub001/internal/store"
	"github.com/amitngm/openlens-sub001/internal/write_buffer"
	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(cfg config.AppConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zapConfig := zap.NewProductionConfig()
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func newClusterSource(cfg config.KubernetesConfig, logger *zap.Logger) (source.ClusterSource, error) {
	if cfg.Mode == config.KubernetesModeProxy {
		return kubeproxy.NewClient(cfg.ProxyURL, cfg.GetTimeoutDuration(), logger), nil
	}
	clientset, err := kube.NewClientset(cfg.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return kube.NewClient(clientset, logger), nil
}

func newCorrelatorConfig(cfg config.CorrelationConfig) logService.CorrelatorConfig {
	return logService.CorrelatorConfig{
		Buffer:               cfg.GetBufferDuration(),
		MaxConcurrency:       cfg.MaxConcurrency,
		ContainerConcurrency: cfg.ContainerConcurrency,
		TailLines:            cfg.TailLines,
		FetchTimeout:         cfg.GetFetchTimeoutDuration(),
	}
}

func newTracingClient(cfg config.TracingConfig, logger *zap.Logger) *tracing.Client {
	return tracing.NewClient(cfg.URL, cfg.GetTimeoutDuration(), cfg.GetHealthTimeoutDuration(), logger)
}

// spanStorage is the Elasticsearch side of span handling. Both fields stay nil
// when Elasticsearch is disabled.
type spanStorage struct {
	writeBuffer write_buffer.DatabaseWriteBuffer[spanModel.Span]
	repository  repository.SpanRepository
}

func newSpanStorage(cfg config.ElasticsearchConfig, logger *zap.Logger) (spanStorage, error) {
	var storage spanStorage
	if !cfg.Enabled {
		return storage, nil
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: cfg.Addresses})
	if err != nil {
		return storage, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	bs := bootstrapper.NewBootstrapper(es, logger)
	if err := bs.BootstrapElasticsearch(); err != nil {
		return storage, fmt.Errorf("failed to bootstrap elasticsearch: %w", err)
	}

	lc := client.NewLensClientImpl(es, client.Async)
	storage.writeBuffer = write_buffer.NewDatabaseWriteBufferImpl[spanModel.Span](
		lc,
		bootstrapper.SpanIndexName,
		repository.SpanDocumentID,
		logger,
	)
	storage.repository = repository.NewSpanRepositoryImpl(lc, bootstrapper.SpanIndexName, cfg.BatchSize, logger)
	return storage, nil
}

// newSearchLogCache builds the session log cache. Entries are pods and cost is
// bytes of log text.
func newSearchLogCache(cfg config.SearchConfig, logger *zap.Logger) (*searchService.LogCache, error) {
	ristrettoCache, err := cache.NewRistrettoCache(cfg.LogCacheMaxEntries, cfg.LogCacheMaxCost)
	if err != nil {
		return nil, err
	}
	return searchService.NewLogCache(cache.NewCacheImpl[string](ristrettoCache), logger), nil
}

// newFlowSource returns the remote tracing source when one is configured and
// a source over the local span store otherwise.
func newFlowSource(
	cfg *config.Config,
	spanStore store.SpanStore,
	storage spanStorage,
	logger *zap.Logger,
) (flowService.FlowSource, error) {
	if cfg.Tracing.URL != "" {
		return newTracingClient(cfg.Tracing, logger), nil
	}
	ristrettoCache, err := cache.NewRistrettoCache(int64(cfg.Store.MaxTraces), cfg.Store.FlowCacheMaxCost)
	if err != nil {
		return nil, err
	}
	flowCache := cache.NewCacheImpl[flowModel.FlowGraph](ristrettoCache)
	return flowService.NewFlowQueryService(spanStore, storage.repository, flowCache, logger), nil
}
