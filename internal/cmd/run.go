package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Iron-Ham/forkrunner/internal/config"
	"github.com/Iron-Ham/forkrunner/internal/display"
	"github.com/Iron-Ham/forkrunner/internal/errors"
	"github.com/Iron-Ham/forkrunner/internal/event"
	"github.com/Iron-Ham/forkrunner/internal/logging"
	"github.com/Iron-Ham/forkrunner/internal/metrics"
	"github.com/Iron-Ham/forkrunner/internal/orchestrator/progress"
	"github.com/Iron-Ham/forkrunner/internal/plan"
	"github.com/Iron-Ham/forkrunner/internal/runner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run <plan-file>",
	Short: "Run a test plan across all of its pools",
	Long: `Run every pool of a test plan concurrently.

A failed test case is re-queued in its pool when the retry budget allows:
  retry.total_quota          retries shared by all pools
  retry.per_test_case_quota  retries a single test case may receive

The command exits non-zero when any test case ends failing.

Examples:
  forkrunner run plan.yaml
  forkrunner run --total-retries 20 --json plan.yaml`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runRun,
}

var (
	runJSON bool
)

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Output the run summary as JSON")
	runCmd.Flags().Int("total-retries", 0, "Retries shared by all pools (overrides retry.total_quota)")
	runCmd.Flags().Int("per-test-retries", 0, "Per test case retry ceiling (overrides retry.per_test_case_quota)")
	runCmd.Flags().Int("max-parallel-pools", 0, "Pools executing at once, 0 for all (overrides runner.max_parallel_pools)")
	_ = viper.BindPFlag("retry.total_quota", runCmd.Flags().Lookup("total-retries"))
	_ = viper.BindPFlag("retry.per_test_case_quota", runCmd.Flags().Lookup("per-test-retries"))
	_ = viper.BindPFlag("runner.max_parallel_pools", runCmd.Flags().Lookup("max-parallel-pools"))
	rootCmd.AddCommand(runCmd)
}

// RunOutput is the JSON output of the run command.
type RunOutput struct {
	Passed  bool                `json:"passed"`
	Summary display.Summary     `json:"summary"`
	Tests   []runner.TestResult `json:"tests"`
	Error   string              `json:"error,omitempty"`
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()
	runLog := logger.WithRun(time.Now().Format("20060102-150405"))

	p, err := plan.Load(args[0])
	if err != nil {
		return err
	}

	bus := event.NewBus(runLog)
	reporter := progress.NewReporter(cfg.ProgressConfig(), runLog, bus)

	collector := metrics.NewCollector()
	collector.Attach(bus)
	defer collector.Detach()
	collector.TrackRetryBudget(reporter)

	if cfg.Metrics.ListenAddr != "" {
		shutdown, err := serveMetrics(cfg.Metrics.ListenAddr, collector, runLog)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	r, err := runner.New(runner.Config{
		Plan:     p,
		Reporter: reporter,
		Executor: runner.NewScriptedExecutor(p),
		Bus:      bus,
	},
		runner.WithLogger(runLog),
		runner.WithMaxParallelPools(cfg.Runner.MaxParallelPools),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := r.Run(ctx)
	if runErr != nil {
		logRunError(runLog, runErr)
	}
	if result == nil {
		return runErr
	}

	summary := display.Snapshot(reporter)
	if runJSON {
		out := RunOutput{Passed: runErr == nil && result.Passed(), Summary: summary, Tests: result.Tests}
		if runErr != nil {
			out.Error = runErr.Error()
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
	} else {
		view := display.NewView(display.Options{BarWidth: cfg.Display.BarWidth, ShowPools: cfg.Display.ShowPools})
		fmt.Fprintln(cmd.OutOrStdout(), view.Render(summary))
		fmt.Fprintln(cmd.OutOrStdout(), view.RenderResult(result))
	}

	if runErr != nil {
		return runErr
	}
	if failed := len(result.Failed()); failed > 0 {
		return fmt.Errorf("%d of %d tests failed", failed, len(result.Tests))
	}
	return nil
}

// logRunError logs a run that ended early at the level its severity calls for.
func logRunError(logger *logging.Logger, err error) {
	switch errors.SeverityOf(err) {
	case errors.SeverityDebug:
		logger.Debug("run ended early", "error", err)
	case errors.SeverityInfo:
		logger.Info("run ended early", "error", err)
	case errors.SeverityWarning:
		logger.Warn("run ended early", "error", err)
	default:
		logger.Error("run ended early", "error", err)
	}
}

// serveMetrics exposes the collector on addr until the returned function is called.
func serveMetrics(addr string, collector *metrics.Collector, logger *logging.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
