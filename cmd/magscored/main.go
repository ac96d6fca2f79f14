// Command magscored serves the match pattern engine over gRPC and exposes
// Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/magscore/internal/codec"
	"github.com/danielpatrickdp/magscore/internal/config"
	"github.com/danielpatrickdp/magscore/internal/logging"
	"github.com/danielpatrickdp/magscore/internal/pipeline"
)

var (
	configPath string
	version    = "dev"
)

// #region main
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "magscored",
	Short:   "Neutral match pattern engine",
	Version: version,
	Long: `magscored turns per-match statistics into behaviors, patterns and rupture
events, and keeps a bounded per-team history of detected patterns.

Settings come from the optional --config YAML file, overridden by
SECTION_FIELD environment variables (e.g. MEMORY_MAX_EPISODES=20).`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve AnalysisService over gRPC",
	RunE:  runServe,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <match.json>",
	Short: "Analyze one match file locally and print the result",
	Long: `Analyze one MatchInput JSON file against the configured store and print
the result bundle.

Examples:
  # Analyze without recording
  magscored analyze --dry-run match.json

  # Analyze against a persistent history
  MEMORY_PATH=history.db magscored analyze match.json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var dryRun bool

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	analyzeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "analyze without recording the match")
	rootCmd.AddCommand(serveCmd, analyzeCmd)
}

// #endregion main

// #region serve
func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	eng, err := buildEngine(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}
	srv := grpc.NewServer(grpc.UnaryInterceptor(codec.UnaryLogger(logger)))
	codec.RegisterAnalysisServer(srv, codec.NewAnalysisServer(eng.gate, eng.pipeline, logger))

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("magscored ready",
		zap.String("grpc_addr", cfg.Server.GRPCAddr),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
		zap.String("memory_path", cfg.Memory.Path),
		zap.Bool("vision", cfg.Vision.Addr != ""),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
	}

	srv.GracefulStop()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// #endregion serve

// #region analyze
func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	eng, err := buildEngine(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer eng.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read match file: %w", err)
	}
	in, err := pipeline.DecodeInput(eng.gate, data)
	if err != nil {
		return err
	}
	if dryRun {
		in.DryRun = true
	}
	res, err := eng.pipeline.Analyze(cmd.Context(), in)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// #endregion analyze

// #region helpers
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

// #endregion helpers
