// Package graph reads the summary of a processing (quantum) graph: its run metadata and
// the dataset references it declares as outputs.
package graph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/k8ika0s/finaljob/internal/runner"
)

var (
	// ErrNoOutputRun is returned when the metadata lacks the output run name.
	ErrNoOutputRun = errors.New("graph metadata has no output_run")
	// ErrUnsupportedFormat is returned for graph files that can only be read through a summary command.
	ErrUnsupportedFormat = errors.New("unsupported graph file format")
)

const (
	keyOutputRun      = "output_run"
	keyButlerArgument = "butler_argument"
)

// Ref is one dataset reference declared by the graph.
type Ref struct {
	DatasetType string         `yaml:"dataset_type" json:"dataset_type"`
	DataID      map[string]any `yaml:"data_id,omitempty" json:"data_id,omitempty"`
	ID          string         `yaml:"id,omitempty" json:"id,omitempty"`
}

// Graph is an immutable view of a loaded graph summary.
type Graph struct {
	Metadata    map[string]any `yaml:"metadata" json:"metadata"`
	Outputs     []Ref          `yaml:"outputs" json:"outputs"`
	InitOutputs []Ref          `yaml:"init_outputs,omitempty" json:"init_outputs,omitempty"`
}

// OutputRun is the name of the run collection the graph writes to.
func (g *Graph) OutputRun() string { return g.metaString(keyOutputRun) }

// ButlerArgument is the repository the graph was built against.
func (g *Graph) ButlerArgument() string { return g.metaString(keyButlerArgument) }

func (g *Graph) metaString(key string) string {
	v, ok := g.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// DatasetTypes returns the sorted unique names of all output and init-output dataset types.
func (g *Graph) DatasetTypes() []string {
	seen := map[string]struct{}{}
	for _, refs := range [][]Ref{g.Outputs, g.InitOutputs} {
		for _, r := range refs {
			if r.DatasetType == "" {
				continue
			}
			seen[r.DatasetType] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Parse decodes a YAML or JSON graph summary.
func Parse(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("unmarshal graph summary: %w", err)
	}
	if strings.TrimSpace(g.OutputRun()) == "" {
		return nil, ErrNoOutputRun
	}
	return &g, nil
}

// IsSummaryFile reports whether path names a document LoadFile can read.
func IsSummaryFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadFile reads a graph summary from disk.
func LoadFile(path string) (*Graph, error) {
	if !IsSummaryFile(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Loader finds the summary of a graph file. A summary file wins over a summary command;
// with neither, the graph path itself must be a summary document.
type Loader struct {
	SummaryPath string
	// SummaryCmd is run with the graph path appended as its last argument.
	SummaryCmd []string
	Runner     runner.Runner
}

// Load never hands graphPath to anything but the summary command.
func (l Loader) Load(ctx context.Context, graphPath string) (*Graph, error) {
	if l.SummaryPath != "" {
		return LoadFile(l.SummaryPath)
	}
	if len(l.SummaryCmd) == 0 || l.Runner == nil {
		return LoadFile(graphPath)
	}
	argv := append(append([]string{}, l.SummaryCmd...), graphPath)
	res, err := l.Runner.Run(ctx, runner.Invocation{Stage: "graph-summary", Argv: argv})
	if err != nil {
		return nil, fmt.Errorf("summarize graph %s: %w", graphPath, err)
	}
	g, err := Parse([]byte(res.Stdout))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", graphPath, err)
	}
	return g, nil
}
