package service

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/k8ika0s/finaljob/internal/plan"
)

const manifestName = "final-job-manifest.json"

// Manifest summarizes a finished run.
type Manifest struct {
	Run          string            `json:"run"`
	Repo         string            `json:"repo"`
	Graph        string            `json:"graph"`
	TransferMode string            `json:"transfer_mode"`
	Partition    plan.Partition    `json:"partition"`
	IngestedZips []string          `json:"ingested_zips"`
	ZipLocations map[string]string `json:"zip_locations"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
}

func (j *Job) manifest(started time.Time) *Manifest {
	zips := j.zips
	if zips == nil {
		zips = []string{}
	}
	return &Manifest{
		Run:          j.Graph.OutputRun(),
		Repo:         j.Repo,
		Graph:        j.GraphPath,
		TransferMode: j.Cfg.TransferMode,
		Partition:    j.partition,
		IngestedZips: zips,
		ZipLocations: j.locations,
		StartedAt:    started.UTC(),
		FinishedAt:   time.Now().UTC(),
	}
}

// ManifestKey is where the manifest of run lands in the object store.
func ManifestKey(prefix, run string) string {
	return path.Join(prefix, run, manifestName)
}

// writeManifest writes the manifest locally (best effort).
func writeManifest(outputPath string, m *Manifest) error {
	if outputPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

// storeManifest keeps the manifest locally and in the object store; failures are only logged.
func (j *Job) storeManifest(ctx context.Context, m *Manifest) {
	if err := writeManifest(j.Cfg.ManifestPath, m); err != nil {
		j.Logger.Warn("write manifest", "path", j.Cfg.ManifestPath, "error", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		j.Logger.Warn("encode manifest", "error", err)
		return
	}
	key := ManifestKey(j.Cfg.ManifestPrefix, m.Run)
	if err := j.Store.Put(ctx, key, data, "application/json"); err != nil {
		j.Logger.Warn("upload manifest", "key", key, "error", err)
	}
}
