package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/youta-t/flarc"

	"github.com/k8ika0s/finaljob/internal/runner"
	"github.com/k8ika0s/finaljob/internal/service"
)

const (
	ARGS_QGRAPH        = "QGRAPH"
	ARGS_BUTLER_CONFIG = "BUTLER_CONFIG"
)

type Flags struct {
	Transfer             string `flag:"transfer" metavar:"remaining|all" help:"dataset types passed to transfer-from-graph: only the unzipped ones (remaining) or every type (all). Defaults to TRANSFER_MODE."`
	RegisterDataProducts bool   `flag:"register-data-products" help:"also register every unzipped dataset type with rucio-register. Defaults to RUCIO_REGISTER_DATA_PRODUCTS."`
	GraphSummary         string `flag:"graph-summary" metavar:"PATH" help:"YAML or JSON summary of QGRAPH, read instead of QGRAPH itself. Defaults to GRAPH_SUMMARY_PATH."`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := service.FromEnv()
	logger := service.NewLogger(cfg, os.Stderr)

	// run failures are reported below rather than by flarc, so the tool's exit code survives.
	var runErr error
	cmd, err := flarc.NewCommand(
		"zip, ingest, transfer and register the outputs of a processing graph",
		Flags{
			Transfer:             cfg.TransferMode,
			RegisterDataProducts: cfg.RegisterDataProducts,
		},
		flarc.Args{
			{
				Name: ARGS_QGRAPH, Required: true,
				Help: "processing graph (summary) whose outputs are packaged",
			},
			{
				Name: ARGS_BUTLER_CONFIG, Required: true,
				Help: "destination repository",
			},
		},
		func(ctx context.Context, c flarc.Commandline[Flags], _ []any) error {
			flags := c.Flags()
			cfg.TransferMode = flags.Transfer
			cfg.RegisterDataProducts = cfg.RegisterDataProducts || flags.RegisterDataProducts
			cfg.GraphSummaryPath = flags.GraphSummary
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("%w: %v", flarc.ErrUsage, err)
			}
			args := c.Args()
			logger.Info("final job starting",
				"graph", args[ARGS_QGRAPH][0],
				"repo", args[ARGS_BUTLER_CONFIG][0],
				"transfer_mode", cfg.TransferMode,
				"register_zips", cfg.RegisterZips,
				"register_data_products", cfg.RegisterDataProducts,
			)
			runErr = service.Run(ctx, cfg, args[ARGS_QGRAPH][0], args[ARGS_BUTLER_CONFIG][0], logger)
			return nil
		},
	)
	if err != nil {
		logger.Error("build command", "error", err)
		os.Exit(2)
	}

	code := flarc.Run(ctx, cmd)
	if runErr != nil {
		logger.Error("final job failed", "error", runErr)
	}
	os.Exit(exitCode(code, runErr))
}

// exitCode picks the process status: flarc's own for usage problems, 2 for bad
// configuration, otherwise the status of the tool that failed.
func exitCode(flarcCode int, runErr error) int {
	switch {
	case runErr == nil:
		return flarcCode
	case errors.Is(runErr, service.ErrInvalidConfig):
		return 2
	default:
		return runner.ExitCode(runErr)
	}
}
