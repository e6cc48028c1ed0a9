package butler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/k8ika0s/finaljob/internal/runner"
)

// ErrNoDataset is returned when a run holds no dataset of a requested type.
var ErrNoDataset = errors.New("no matching dataset")

// Locator resolves where the zip bundle holding each dataset type ended up.
type Locator interface {
	Locate(ctx context.Context, repo, run string, datasetTypes []string) (map[string]string, error)
}

// CLILocator answers with read-only butler queries scoped to the output run.
type CLILocator struct {
	CLI    CLI
	Runner runner.Runner
}

func (l CLILocator) Locate(ctx context.Context, repo, run string, datasetTypes []string) (map[string]string, error) {
	locations := make(map[string]string, len(datasetTypes))
	for _, dt := range datasetTypes {
		res, err := l.Runner.Run(ctx, runner.Invocation{
			Stage:       "locate",
			DatasetType: dt,
			Argv:        l.CLI.QueryDatasetURI(repo, run, dt),
		})
		if err != nil {
			return nil, fmt.Errorf("query %s in %s: %w", dt, run, err)
		}
		uri, ok := FirstURI(res.Stdout)
		if !ok {
			return nil, fmt.Errorf("%w: %s in %s", ErrNoDataset, dt, run)
		}
		locations[dt] = StripFragment(uri)
	}
	return locations, nil
}

// FirstURI extracts the URI column of the first row of a query-datasets table.
func FirstURI(table string) (string, bool) {
	headerSeen := false
	for _, line := range strings.Split(table, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if !headerSeen {
			if fields[len(fields)-1] == "URI" {
				headerSeen = true
			}
			continue
		}
		if strings.Trim(line, "- \t") == "" {
			continue
		}
		return fields[len(fields)-1], true
	}
	return "", false
}

// StripFragment drops a trailing "#fragment" from a resolved URI.
func StripFragment(uri string) string {
	if i := strings.IndexByte(uri, '#'); i >= 0 {
		return uri[:i]
	}
	return uri
}
