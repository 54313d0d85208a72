// Package config loads the openlens configuration from config.yaml and the
// environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	KubernetesModeClient = "client"
	KubernetesModeProxy  = "proxy"
)

type Config struct {
	App           AppConfig           `mapstructure:"app"`
	OTLP          OTLPConfig          `mapstructure:"otlp"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
	Kubernetes    KubernetesConfig    `mapstructure:"kubernetes"`
	Correlation   CorrelationConfig   `mapstructure:"correlation"`
	Refresh       RefreshConfig       `mapstructure:"refresh"`
	Search        SearchConfig        `mapstructure:"search"`
	Store         StoreConfig         `mapstructure:"store"`
}

type AppConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"log_level"`
	Development bool   `mapstructure:"development"`
}

// Address is the listen address of the HTTP API.
func (c *AppConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type OTLPConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listen_address"`
}

// ElasticsearchConfig enables span indexing and collection. With Enabled unset
// spans only live in memory.
type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	BatchSize int      `mapstructure:"batch_size"`
}

// TracingConfig points at a remote tracing query source. With URL empty flows
// are built from the local span store.
type TracingConfig struct {
	URL           string `mapstructure:"url"`
	Timeout       string `mapstructure:"timeout"`
	HealthURL     string `mapstructure:"health_url"`
	HealthTimeout string `mapstructure:"health_timeout"`
}

type KubernetesConfig struct {
	Mode       string `mapstructure:"mode"`
	Kubeconfig string `mapstructure:"kubeconfig"`
	ProxyURL   string `mapstructure:"proxy_url"`
	Timeout    string `mapstructure:"timeout"`
}

type CorrelationConfig struct {
	Buffer               string `mapstructure:"buffer"`
	MaxConcurrency       int    `mapstructure:"max_concurrency"`
	ContainerConcurrency int    `mapstructure:"container_concurrency"`
	TailLines            int    `mapstructure:"tail_lines"`
	FetchTimeout         string `mapstructure:"fetch_timeout"`
}

type RefreshConfig struct {
	FlowInterval       string `mapstructure:"flow_interval"`
	DependencyInterval string `mapstructure:"dependency_interval"`
	FlowLimit          int    `mapstructure:"flow_limit"`
	Namespace          string `mapstructure:"namespace"`
}

type SearchConfig struct {
	PodDebounce        string `mapstructure:"pod_debounce"`
	LogDebounce        string `mapstructure:"log_debounce"`
	TailLines          int    `mapstructure:"tail_lines"`
	LogCacheMaxCost    int64  `mapstructure:"log_cache_max_cost"`
	LogCacheMaxEntries int64  `mapstructure:"log_cache_max_entries"`
}

type StoreConfig struct {
	MaxTraces        int   `mapstructure:"max_traces"`
	FlowCacheMaxCost int64 `mapstructure:"flow_cache_max_cost"`
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (c *TracingConfig) GetTimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

func (c *TracingConfig) GetHealthTimeoutDuration() time.Duration {
	return parseDuration(c.HealthTimeout, 5*time.Second)
}

func (c *KubernetesConfig) GetTimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

func (c *CorrelationConfig) GetBufferDuration() time.Duration {
	return parseDuration(c.Buffer, 5*time.Second)
}

// GetFetchTimeoutDuration returns zero when no fetch timeout is configured.
func (c *CorrelationConfig) GetFetchTimeoutDuration() time.Duration {
	return parseDuration(c.FetchTimeout, 0)
}

func (c *RefreshConfig) GetFlowIntervalDuration() time.Duration {
	return parseDuration(c.FlowInterval, 10*time.Second)
}

func (c *RefreshConfig) GetDependencyIntervalDuration() time.Duration {
	return parseDuration(c.DependencyInterval, 30*time.Second)
}

func (c *SearchConfig) GetPodDebounceDuration() time.Duration {
	return parseDuration(c.PodDebounce, 800*time.Millisecond)
}

func (c *SearchConfig) GetLogDebounceDuration() time.Duration {
	return parseDuration(c.LogDebounce, time.Second)
}

// Load reads configFile, or config.yaml from the usual locations when
// configFile is empty. Environment variables override file values, with dots
// replaced by underscores (CORRELATION_BUFFER).
func Load(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/openlens")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	switch cfg.Kubernetes.Mode {
	case KubernetesModeClient, KubernetesModeProxy:
	default:
		return nil, fmt.Errorf("unknown kubernetes mode %q", cfg.Kubernetes.Mode)
	}
	if cfg.Kubernetes.Mode == KubernetesModeProxy && cfg.Kubernetes.ProxyURL == "" {
		return nil, fmt.Errorf("kubernetes.proxy_url is required in proxy mode")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8081)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.development", false)
	v.SetDefault("otlp.enabled", true)
	v.SetDefault("otlp.listen_address", ":4317")
	v.SetDefault("elasticsearch.enabled", false)
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.batch_size", 1000)
	v.SetDefault("tracing.url", "")
	v.SetDefault("tracing.timeout", "10s")
	v.SetDefault("tracing.health_url", "")
	v.SetDefault("tracing.health_timeout", "5s")
	v.SetDefault("kubernetes.mode", KubernetesModeClient)
	v.SetDefault("kubernetes.kubeconfig", "")
	v.SetDefault("kubernetes.proxy_url", "")
	v.SetDefault("kubernetes.timeout", "30s")
	v.SetDefault("correlation.buffer", "5s")
	v.SetDefault("correlation.max_concurrency", 16)
	v.SetDefault("correlation.container_concurrency", 4)
	v.SetDefault("correlation.tail_lines", 1000)
	v.SetDefault("correlation.fetch_timeout", "")
	v.SetDefault("refresh.flow_interval", "10s")
	v.SetDefault("refresh.dependency_interval", "30s")
	v.SetDefault("refresh.flow_limit", 100)
	v.SetDefault("refresh.namespace", "")
	v.SetDefault("search.pod_debounce", "800ms")
	v.SetDefault("search.log_debounce", "1s")
	v.SetDefault("search.tail_lines", 500)
	v.SetDefault("search.log_cache_max_cost", 64<<20)
	v.SetDefault("search.log_cache_max_entries", 1024)
	v.SetDefault("store.max_traces", 10000)
	v.SetDefault("store.flow_cache_max_cost", 10000)
}
