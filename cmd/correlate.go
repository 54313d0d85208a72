package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/amitngm/openlens-sub001/internal/config"
	flowService "github.com/amitngm/openlens-sub001/internal/flow/service"
	logModel "github.com/amitngm/openlens-sub001/internal/logs/model"
	logService "github.com/amitngm/openlens-sub001/internal/logs/service"
	"github.com/amitngm/openlens-sub001/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	correlateTraceID    string
	correlateNamespace  string
	correlateSearchTerm string
)

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Print the logs written by the pods of one trace while it ran",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if cfg.Tracing.URL == "" {
			return errors.New("tracing.url is required to look up a trace")
		}
		logger, err := newLogger(cfg.App)
		if err != nil {
			return err
		}
		defer logger.Sync()

		cluster, err := newClusterSource(cfg.Kubernetes, logger)
		if err != nil {
			return err
		}
		correlator := logService.NewLogCorrelator(
			cluster,
			newCorrelatorConfig(cfg.Correlation),
			metrics.NewMetrics(prometheus.NewRegistry()),
			logger,
		)
		return correlate(
			cmd.Context(),
			newTracingClient(cfg.Tracing, logger),
			correlator,
			correlateRequest{
				traceID:    correlateTraceID,
				namespace:  correlateNamespace,
				searchTerm: correlateSearchTerm,
			},
			cmd.OutOrStdout(),
		)
	},
}

func init() {
	correlateCmd.Flags().StringVar(&correlateTraceID, "trace-id", "", "trace to correlate")
	correlateCmd.Flags().StringVar(&correlateNamespace, "namespace", "", "only read pods in this namespace")
	correlateCmd.Flags().StringVar(&correlateSearchTerm, "search", "", "text counted in every pod's logs")
	_ = correlateCmd.MarkFlagRequired("trace-id")
	rootCmd.AddCommand(correlateCmd)
}

type correlateRequest struct {
	traceID    string
	namespace  string
	searchTerm string
}

type correlateOutput struct {
	TraceID       string                  `json:"traceId"`
	OperationName string                  `json:"operationName"`
	Pods          []logModel.PodLogBundle `json:"pods"`
}

func correlate(
	ctx context.Context,
	fs flowService.FlowSource,
	lc logService.LogCorrelator,
	req correlateRequest,
	out io.Writer,
) error {
	if ctx == nil {
		ctx = context.Background()
	}
	flow, err := fs.GetFlow(ctx, req.traceID)
	if err != nil {
		return fmt.Errorf("failed to get flow for trace %s: %w", req.traceID, err)
	}

	targets := logService.TargetsForFlow(flow, req.namespace)
	bundles := lc.CorrelateLogs(ctx, targets, logService.WindowForFlow(flow), flow.TraceID, req.searchTerm)

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(correlateOutput{
		TraceID:       flow.TraceID,
		OperationName: flow.OperationName,
		Pods:          logService.RankBundles(bundles),
	})
}

