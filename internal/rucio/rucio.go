// Package rucio builds rucio-register command lines and maps dataset types to remote
// dataset identifiers.
package rucio

import (
	"fmt"
	"io"

	"github.com/valyala/fasttemplate"
)

const (
	DefaultExe      = "rucio-register"
	DefaultLogLevel = "VERBOSE"
)

// Target is what a remote identifier may be derived from.
type Target struct {
	DatasetType string
	Run         string
	Repo        string
}

// IDMapper derives the remote dataset identifier for a dataset type.
type IDMapper interface {
	DatasetID(t Target) string
}

// MapperFunc adapts a function to IDMapper.
type MapperFunc func(t Target) string

func (f MapperFunc) DatasetID(t Target) string { return f(t) }

// Identity uses the dataset type name unchanged as the remote identifier.
var Identity IDMapper = MapperFunc(func(t Target) string { return t.DatasetType })

var placeholders = map[string]func(Target) string{
	"dataset_type": func(t Target) string { return t.DatasetType },
	"run":          func(t Target) string { return t.Run },
	"repo":         func(t Target) string { return t.Repo },
}

// TemplateMapper renders identifiers such as "{run}/{dataset_type}".
type TemplateMapper struct {
	tmpl *fasttemplate.Template
}

// NewTemplateMapper parses text; unknown placeholders are rejected.
func NewTemplateMapper(text string) (*TemplateMapper, error) {
	tmpl, err := fasttemplate.NewTemplate(text, "{", "}")
	if err != nil {
		return nil, fmt.Errorf("parse dataset id template %q: %w", text, err)
	}
	var unknown error
	tmpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		if _, ok := placeholders[tag]; !ok && unknown == nil {
			unknown = fmt.Errorf("dataset id template %q: unknown placeholder {%s}", text, tag)
		}
		return 0, nil
	})
	if unknown != nil {
		return nil, unknown
	}
	return &TemplateMapper{tmpl: tmpl}, nil
}

func (m *TemplateMapper) DatasetID(t Target) string {
	return m.tmpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		return w.Write([]byte(placeholders[tag](t)))
	})
}

// MapperFromTemplate returns Identity for an empty template.
func MapperFromTemplate(text string) (IDMapper, error) {
	if text == "" || text == "{dataset_type}" {
		return Identity, nil
	}
	return NewTemplateMapper(text)
}

// CLI describes how to invoke rucio-register.
type CLI struct {
	Exe      string
	LogLevel string
}

func (c CLI) base(mode string) []string {
	exe := c.Exe
	if exe == "" {
		exe = DefaultExe
	}
	level := c.LogLevel
	if level == "" {
		level = DefaultLogLevel
	}
	return []string{exe, mode, "--log-level=" + level}
}

// RegisterZip records a zip bundle under a remote dataset.
func (c CLI) RegisterZip(datasetID, zipURL string) []string {
	return append(c.base("zips"), "--rucio-dataset", datasetID, "--zip-file", zipURL)
}

// RegisterDataProduct records the datasets of one type in a collection.
func (c CLI) RegisterDataProduct(datasetID, datasetType, collection, repo string) []string {
	return append(c.base("data-products"),
		"--rucio-dataset", datasetID,
		"--dataset-type", datasetType,
		"--collections", collection,
		"--repo", repo,
	)
}
