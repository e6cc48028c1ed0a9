package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/k8ika0s/finaljob/internal/butler"
	"github.com/k8ika0s/finaljob/internal/graph"
	"github.com/k8ika0s/finaljob/internal/objectstore"
	"github.com/k8ika0s/finaljob/internal/reporter"
	"github.com/k8ika0s/finaljob/internal/rucio"
)

var (
	// ErrInvalidConfig marks every configuration problem detected before work starts.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrMissingEnv is returned when a required environment variable is unset.
	ErrMissingEnv = fmt.Errorf("%w: required environment variable not set", ErrInvalidConfig)
)

const (
	// TransferRemaining limits the transfer to the dataset types that were not zipped.
	TransferRemaining = "remaining"
	// TransferAll transfers every dataset type, relying on ingest having consumed the zipped ones.
	TransferAll = "all"
)

// Config holds final-job settings.
type Config struct {
	ZipConfigPath        string
	DafButlerDir         string
	TransferMode         string
	ButlerLogLevel       string
	RucioBin             string
	RucioLogLevel        string
	RegisterZips         bool
	RegisterDataProducts bool
	DatasetIDTemplate    string
	ScratchRoot          string
	StepTimeoutSec       int
	GraphSummaryPath     string
	GraphSummaryCmd      []string
	LogLevel             string
	LogFormat            string
	ReportBackend        string
	ControlPlaneURL      string
	ControlPlaneToken    string
	RedisURL             string
	RedisKey             string
	KafkaBrokers         string
	KafkaTopic           string
	ObjectStoreEndpoint  string
	ObjectStoreBucket    string
	ObjectStoreAccess    string
	ObjectStoreSecret    string
	ObjectStoreUseSSL    bool
	ManifestPath         string
	ManifestPrefix       string
}

// FromEnv reads the configuration once; call Validate before using it.
func FromEnv() Config {
	return Config{
		ZipConfigPath:        getenv("ZIP_DSTYPE_CONFIG", ""),
		DafButlerDir:         getenv("DAF_BUTLER_DIR", ""),
		TransferMode:         getenv("TRANSFER_MODE", TransferRemaining),
		ButlerLogLevel:       getenv("BUTLER_LOG_LEVEL", butler.DefaultLogLevel),
		RucioBin:             getenv("RUCIO_REGISTER_BIN", rucio.DefaultExe),
		RucioLogLevel:        getenv("RUCIO_LOG_LEVEL", rucio.DefaultLogLevel),
		RegisterZips:         getenvBool("RUCIO_REGISTER_ZIPS", true),
		RegisterDataProducts: getenvBool("RUCIO_REGISTER_DATA_PRODUCTS", false),
		DatasetIDTemplate:    getenv("RUCIO_DATASET_TEMPLATE", ""),
		ScratchRoot:          getenv("SCRATCH_ROOT", ""),
		StepTimeoutSec:       getenvInt("STEP_TIMEOUT_SEC", 0),
		GraphSummaryPath:     getenv("GRAPH_SUMMARY_PATH", ""),
		GraphSummaryCmd:      parseCmd(getenv("GRAPH_SUMMARY_CMD", "")),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		LogFormat:            getenv("LOG_FORMAT", "json"),
		ReportBackend:        getenv("REPORT_BACKEND", "none"),
		ControlPlaneURL:      getenv("CONTROL_PLANE_URL", ""),
		ControlPlaneToken:    getenv("CONTROL_PLANE_TOKEN", ""),
		RedisURL:             getenv("REDIS_URL", ""),
		RedisKey:             getenv("REDIS_KEY", "finaljob:events"),
		KafkaBrokers:         getenv("KAFKA_BROKERS", ""),
		KafkaTopic:           getenv("KAFKA_TOPIC", "finaljob.events"),
		ObjectStoreEndpoint:  getenv("OBJECT_STORE_ENDPOINT", ""),
		ObjectStoreBucket:    getenv("OBJECT_STORE_BUCKET", ""),
		ObjectStoreAccess:    getenv("OBJECT_STORE_ACCESS_KEY", ""),
		ObjectStoreSecret:    getenv("OBJECT_STORE_SECRET_KEY", ""),
		ObjectStoreUseSSL:    getenvBool("OBJECT_STORE_USE_SSL", false),
		ManifestPath:         getenv("MANIFEST_PATH", ""),
		ManifestPrefix:       getenv("MANIFEST_PREFIX", "final-job"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getenvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y":
			return true
		case "0", "false", "no", "n":
			return false
		}
	}
	return def
}

func parseCmd(cmd string) []string {
	if cmd == "" {
		return nil
	}
	return strings.Fields(cmd)
}

// Validate fails fast on anything that would only break halfway through a run.
func (c Config) Validate() error {
	if c.ZipConfigPath == "" {
		return fmt.Errorf("%w: ZIP_DSTYPE_CONFIG", ErrMissingEnv)
	}
	if c.DafButlerDir == "" {
		return fmt.Errorf("%w: DAF_BUTLER_DIR", ErrMissingEnv)
	}
	switch c.TransferMode {
	case TransferRemaining, TransferAll:
	default:
		return fmt.Errorf("%w: transfer mode %q (want %s or %s)", ErrInvalidConfig, c.TransferMode, TransferRemaining, TransferAll)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("%w: LOG_FORMAT %q", ErrInvalidConfig, c.LogFormat)
	}
	if _, err := c.IDMapper(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ValidateGraph checks that the graph handed to the butler can also be summarized.
func (c Config) ValidateGraph(graphPath string) error {
	if c.GraphSummaryPath != "" {
		if !graph.IsSummaryFile(c.GraphSummaryPath) {
			return fmt.Errorf("%w: GRAPH_SUMMARY_PATH %s is not a YAML or JSON summary", ErrInvalidConfig, c.GraphSummaryPath)
		}
		return nil
	}
	if len(c.GraphSummaryCmd) > 0 || graph.IsSummaryFile(graphPath) {
		return nil
	}
	return fmt.Errorf("%w: graph %s needs GRAPH_SUMMARY_PATH or GRAPH_SUMMARY_CMD", ErrInvalidConfig, graphPath)
}

// ScopeTransferToRemaining reports whether the transfer is filtered to the unzipped types.
func (c Config) ScopeTransferToRemaining() bool {
	return c.TransferMode != TransferAll
}

// StepTimeout is zero when steps may run forever.
func (c Config) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutSec) * time.Second
}

// Butler returns the butler CLI under DAF_BUTLER_DIR.
func (c Config) Butler() butler.CLI {
	return butler.New(c.DafButlerDir, c.ButlerLogLevel)
}

// Rucio returns the registration CLI.
func (c Config) Rucio() rucio.CLI {
	return rucio.CLI{Exe: c.RucioBin, LogLevel: c.RucioLogLevel}
}

// IDMapper derives remote dataset identifiers; identity unless a template is set.
func (c Config) IDMapper() (rucio.IDMapper, error) {
	return rucio.MapperFromTemplate(c.DatasetIDTemplate)
}

// ReporterOptions selects the event sink.
func (c Config) ReporterOptions() reporter.Options {
	return reporter.Options{
		Backend:         c.ReportBackend,
		ControlPlaneURL: c.ControlPlaneURL,
		Token:           c.ControlPlaneToken,
		RedisURL:        c.RedisURL,
		RedisKey:        c.RedisKey,
		KafkaBrokers:    c.KafkaBrokers,
		KafkaTopic:      c.KafkaTopic,
	}
}

// ObjectStore builds an object storage client if configured.
func (c Config) ObjectStore() (objectstore.Store, error) {
	if c.ObjectStoreEndpoint == "" || c.ObjectStoreBucket == "" {
		return objectstore.NullStore{}, nil
	}
	return objectstore.NewMinIOStore(c.ObjectStoreEndpoint, c.ObjectStoreAccess, c.ObjectStoreSecret, c.ObjectStoreBucket, c.ObjectStoreUseSSL)
}

// ZipConfig is the document naming the dataset types eligible for zipping.
type ZipConfig struct {
	ToZip *[]string `yaml:"to_zip"`
}

// LoadZipCandidates reads the to_zip list from path.
func LoadZipCandidates(path string) ([]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read zip config: %w", err)
	}
	var zc ZipConfig
	if err := yaml.Unmarshal(data, &zc); err != nil {
		return nil, fmt.Errorf("parse zip config %s: %w", path, err)
	}
	if zc.ToZip == nil {
		return nil, fmt.Errorf("zip config %s: missing key to_zip", path)
	}
	return *zc.ToZip, nil
}
