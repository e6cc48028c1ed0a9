// Package butler builds the command lines of the data-butler CLI used by the final job.
package butler

import (
	"path/filepath"
	"strings"
)

// DefaultLogLevel matches what the batch system expects in job logs.
const DefaultLogLevel = "VERBOSE"

// CLI describes how to invoke the butler executable.
type CLI struct {
	Exe      string
	LogLevel string
}

// New returns a CLI for the executable shipped under the tool-suite install dir.
func New(dafButlerDir, logLevel string) CLI {
	if logLevel == "" {
		logLevel = DefaultLogLevel
	}
	return CLI{Exe: filepath.Join(dafButlerDir, "bin", "butler"), LogLevel: logLevel}
}

func (c CLI) base(subcommand string) []string {
	return []string{c.Exe, "--long-log", "--log-level=" + c.LogLevel, subcommand}
}

// ZipFromGraph writes the zip bundles of one dataset type into outDir.
func (c CLI) ZipFromGraph(datasetType, graphPath, repo, outDir string) []string {
	args := c.base("zip-from-graph")
	return append(args, "--dataset-type", datasetType, graphPath, repo, outDir)
}

// IngestZip moves a zip bundle into the repository.
func (c CLI) IngestZip(repo, zipPath string) []string {
	args := c.base("ingest-zip")
	return append(args, "--transfer", "move", repo, zipPath)
}

// TransferFromGraph copies graph outputs into the repository. A nil filter transfers every
// dataset type; a non-nil (possibly empty) filter is always passed through.
func (c CLI) TransferFromGraph(graphPath, repo string, filter []string) []string {
	args := c.base("transfer-from-graph")
	if filter != nil {
		args = append(args, "--dataset-type", strings.Join(filter, ","))
	}
	return append(args, graphPath, repo, "--register-dataset-types", "--update-output-chain")
}

// QueryDatasetURI asks for the URI of a single dataset of the given type in run.
func (c CLI) QueryDatasetURI(repo, run, datasetType string) []string {
	return []string{c.Exe, "query-datasets", "--collections", run, "--limit", "1", "--show-uri", repo, datasetType}
}
