package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/k8ika0s/finaljob/internal/graph"
	"github.com/k8ika0s/finaljob/internal/reporter"
	"github.com/k8ika0s/finaljob/internal/runner"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Run executes the final job for the graph at graphPath against repo.
func Run(ctx context.Context, cfg Config, graphPath, repo string, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateGraph(graphPath); err != nil {
		return err
	}
	job, err := BuildJob(ctx, cfg, graphPath, repo, logger)
	if err != nil {
		return err
	}
	return job.Execute(ctx)
}

// BuildJob loads every input of a run and wires its collaborators.
func BuildJob(ctx context.Context, cfg Config, graphPath, repo string, logger *slog.Logger) (*Job, error) {
	candidates, err := LoadZipCandidates(cfg.ZipConfigPath)
	if err != nil {
		return nil, err
	}
	r := &runner.ExecRunner{Logger: logger, Timeout: cfg.StepTimeout()}
	g, err := graph.Loader{SummaryPath: cfg.GraphSummaryPath, SummaryCmd: cfg.GraphSummaryCmd, Runner: r}.Load(ctx, graphPath)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	ids, err := cfg.IDMapper()
	if err != nil {
		return nil, err
	}
	sink, err := reporter.New(cfg.ReporterOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	store, err := cfg.ObjectStore()
	if err != nil {
		return nil, fmt.Errorf("%w: object store: %v", ErrInvalidConfig, err)
	}
	return &Job{
		Cfg:        cfg,
		GraphPath:  graphPath,
		Repo:       repo,
		Graph:      g,
		Candidates: candidates,
		Butler:     cfg.Butler(),
		Rucio:      cfg.Rucio(),
		IDs:        ids,
		Runner:     r,
		Store:      store,
		Events:     sink,
		Logger:     logger,
	}, nil
}

// Execute runs the job, reports the outcome and keeps the manifest of a successful run.
func (j *Job) Execute(ctx context.Context) error {
	if c, ok := j.Events.(io.Closer); ok {
		defer c.Close()
	}
	start := time.Now()
	m, err := j.Run(ctx)
	final := reporter.Event{
		Run:        j.Graph.OutputRun(),
		Stage:      "final-job",
		Status:     reporter.StatusSucceeded,
		DurationMs: time.Since(start).Milliseconds(),
		Timestamp:  time.Now().Unix(),
	}
	if err != nil {
		final.Status = reporter.StatusFailed
		final.ExitCode = runner.ExitCode(err)
		final.Error = err.Error()
		j.publish(final)
		return err
	}
	j.publish(final)
	j.storeManifest(ctx, m)
	j.Logger.Info("final job finished",
		"run", m.Run,
		"zipped", len(m.Partition.ToZip),
		"ingested_zips", len(m.IngestedZips),
		"transferred", len(m.Partition.NotToZip),
	)
	return nil
}
