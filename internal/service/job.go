package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/k8ika0s/finaljob/internal/butler"
	"github.com/k8ika0s/finaljob/internal/graph"
	"github.com/k8ika0s/finaljob/internal/objectstore"
	"github.com/k8ika0s/finaljob/internal/plan"
	"github.com/k8ika0s/finaljob/internal/reporter"
	"github.com/k8ika0s/finaljob/internal/rucio"
	"github.com/k8ika0s/finaljob/internal/runner"
)

// Stage names, in execution order.
const (
	StageZip              = "zip"
	StageIngest           = "ingest"
	StageTransfer         = "transfer"
	StageLocate           = "locate"
	StageRegisterZips     = "register-zips"
	StageRegisterProducts = "register-products"
)

// Job is one final-job run over a single graph and destination repository.
type Job struct {
	Cfg        Config
	GraphPath  string
	Repo       string
	Graph      *graph.Graph
	Candidates []string

	Butler  butler.CLI
	Rucio   rucio.CLI
	IDs     rucio.IDMapper
	Runner  runner.Runner
	Locator butler.Locator
	Store   objectstore.Store
	Events  reporter.Sink
	Logger  *slog.Logger

	// state filled in while stages run
	partition plan.Partition
	scratch   string
	zips      []string
	locations map[string]string
}

// Run partitions the graph's dataset types and drives every stage. The scratch directory
// is gone when Run returns, whatever the outcome.
func (j *Job) Run(ctx context.Context) (*Manifest, error) {
	started := time.Now()
	j.defaults()
	j.partition = plan.Split(j.Graph.DatasetTypes(), j.Candidates)
	j.Logger.Info("partitioned dataset types",
		"run", j.Graph.OutputRun(),
		"to_zip", j.partition.ToZip,
		"not_to_zip", j.partition.NotToZip,
		"transfer_mode", j.Cfg.TransferMode,
	)

	scratch, err := os.MkdirTemp(j.Cfg.ScratchRoot, "finaljob-zips-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	j.scratch = scratch
	defer j.removeScratch()

	if err := RunStages(ctx, j.Runner, j.Stages(), j.observe); err != nil {
		return nil, err
	}
	return j.manifest(started), nil
}

func (j *Job) defaults() {
	if j.Logger == nil {
		j.Logger = slog.Default()
	}
	if j.IDs == nil {
		j.IDs = rucio.Identity
	}
	if j.Store == nil {
		j.Store = objectstore.NullStore{}
	}
	if j.Events == nil {
		j.Events = reporter.NullSink{}
	}
	if j.Locator == nil {
		j.Locator = butler.CLILocator{CLI: j.Butler, Runner: j.Runner}
	}
}

// Stages lists the stage descriptors for the current partition.
func (j *Job) Stages() []Stage {
	stages := []Stage{
		{Name: StageZip, Commands: j.zipCommands},
		{Name: StageIngest, Commands: j.ingestCommands, Done: j.removeScratch},
		{Name: StageTransfer, Commands: j.transferCommands},
		{Name: StageLocate, Commands: j.locate},
	}
	if j.Cfg.RegisterZips {
		stages = append(stages, Stage{Name: StageRegisterZips, Commands: j.registerZipCommands})
	}
	if j.Cfg.RegisterDataProducts {
		stages = append(stages, Stage{Name: StageRegisterProducts, Commands: j.registerProductCommands})
	}
	return stages
}

func (j *Job) zipCommands(context.Context) ([]runner.Invocation, error) {
	invs := make([]runner.Invocation, 0, len(j.partition.ToZip))
	for _, dt := range j.partition.ToZip {
		invs = append(invs, runner.Invocation{
			Stage:       StageZip,
			DatasetType: dt,
			Argv:        j.Butler.ZipFromGraph(dt, j.GraphPath, j.Repo, j.scratch),
		})
	}
	return invs, nil
}

func (j *Job) ingestCommands(context.Context) ([]runner.Invocation, error) {
	zips, err := filepath.Glob(filepath.Join(j.scratch, "*.zip"))
	if err != nil {
		return nil, err
	}
	sort.Strings(zips)
	invs := make([]runner.Invocation, 0, len(zips))
	for _, z := range zips {
		j.zips = append(j.zips, filepath.Base(z))
		invs = append(invs, runner.Invocation{
			Stage: StageIngest,
			Argv:  j.Butler.IngestZip(j.Repo, z),
		})
	}
	return invs, nil
}

func (j *Job) transferCommands(context.Context) ([]runner.Invocation, error) {
	var filter []string
	if j.Cfg.ScopeTransferToRemaining() {
		filter = append([]string{}, j.partition.NotToZip...)
	}
	return []runner.Invocation{{
		Stage: StageTransfer,
		Argv:  j.Butler.TransferFromGraph(j.GraphPath, j.Repo, filter),
	}}, nil
}

// locate resolves zip locations; it runs its own read-only queries and emits no steps.
func (j *Job) locate(ctx context.Context) ([]runner.Invocation, error) {
	j.locations = map[string]string{}
	if j.partition.Empty() {
		return nil, nil
	}
	repo := j.Graph.ButlerArgument()
	if repo == "" {
		repo = j.Repo
	}
	locs, err := j.Locator.Locate(ctx, repo, j.Graph.OutputRun(), j.partition.ToZip)
	if err != nil {
		return nil, err
	}
	for _, dt := range j.partition.ToZip {
		if err := j.Store.Stat(ctx, locs[dt]); err != nil {
			return nil, fmt.Errorf("zip for %s: %w", dt, err)
		}
	}
	j.locations = locs
	return nil, nil
}

func (j *Job) registerZipCommands(context.Context) ([]runner.Invocation, error) {
	types := make([]string, 0, len(j.locations))
	for dt := range j.locations {
		types = append(types, dt)
	}
	sort.Strings(types)
	invs := make([]runner.Invocation, 0, len(types))
	for _, dt := range types {
		id := j.IDs.DatasetID(j.target(dt))
		invs = append(invs, runner.Invocation{
			Stage:       StageRegisterZips,
			DatasetType: dt,
			Argv:        j.Rucio.RegisterZip(id, j.locations[dt]),
		})
	}
	return invs, nil
}

func (j *Job) registerProductCommands(context.Context) ([]runner.Invocation, error) {
	run := j.Graph.OutputRun()
	invs := make([]runner.Invocation, 0, len(j.partition.NotToZip))
	for _, dt := range j.partition.NotToZip {
		id := j.IDs.DatasetID(j.target(dt))
		invs = append(invs, runner.Invocation{
			Stage:       StageRegisterProducts,
			DatasetType: dt,
			Argv:        j.Rucio.RegisterDataProduct(id, dt, run, j.Repo),
		})
	}
	return invs, nil
}

func (j *Job) target(dt string) rucio.Target {
	return rucio.Target{DatasetType: dt, Run: j.Graph.OutputRun(), Repo: j.Repo}
}

func (j *Job) removeScratch() error {
	if j.scratch == "" {
		return nil
	}
	if err := os.RemoveAll(j.scratch); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove scratch dir: %w", err)
	}
	return nil
}

func (j *Job) observe(inv runner.Invocation, finished bool, dur time.Duration, err error) {
	evt := reporter.Event{
		Run:         j.Graph.OutputRun(),
		Stage:       inv.Stage,
		DatasetType: inv.DatasetType,
		Argv:        inv.Argv,
		Status:      reporter.StatusStarted,
		Timestamp:   time.Now().Unix(),
	}
	if finished {
		evt.DurationMs = dur.Milliseconds()
		evt.Status = reporter.StatusSucceeded
		if err != nil {
			evt.Status = reporter.StatusFailed
			evt.ExitCode = runner.ExitCode(err)
			evt.Error = err.Error()
			j.Logger.Error("step failed", "stage", inv.Stage, "dataset_type", inv.DatasetType, "error", err)
		} else {
			j.Logger.Info("step done", "stage", inv.Stage, "dataset_type", inv.DatasetType, "duration_ms", evt.DurationMs)
		}
	}
	j.publish(evt)
}

// publish is best effort; a broken sink never fails the run.
func (j *Job) publish(evt reporter.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Events.Publish(ctx, evt); err != nil {
		j.Logger.Warn("publish event", "stage", evt.Stage, "error", err)
	}
}
