// Package output provides formatters for displaying VMs and pipeline
// reports in various formats (table, YAML, JSON).
package output

import (
	"fmt"
	"time"

	"github.com/jbweber/homestead/internal/lifecycle"
	"github.com/jbweber/homestead/internal/pipeline"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format for declarative consumption.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

// Formatter renders VMs and pipeline reports for output.
type Formatter interface {
	// FormatVM formats a single VM.
	FormatVM(vm *lifecycle.VMInfo) (string, error)

	// FormatVMList formats a list of VMs.
	FormatVMList(vms []lifecycle.VMInfo) (string, error)

	// FormatReport formats an aggregated pipeline run report.
	FormatReport(report *pipeline.RunReport) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}

// reportView is the serializable shape of a RunReport. Errors are
// flattened to strings so YAML/JSON output is useful.
type reportView struct {
	ID           string            `yaml:"id" json:"id"`
	Started      string            `yaml:"started" json:"started"`
	Passed       bool              `yaml:"passed" json:"passed"`
	Environments []environmentView `yaml:"environments" json:"environments"`
}

type environmentView struct {
	Environment string   `yaml:"environment" json:"environment"`
	Passed      bool     `yaml:"passed" json:"passed"`
	Stage       string   `yaml:"stage,omitempty" json:"stage,omitempty"`
	Error       string   `yaml:"error,omitempty" json:"error,omitempty"`
	Violations  []string `yaml:"violations,omitempty" json:"violations,omitempty"`
}

func newReportView(report *pipeline.RunReport) reportView {
	view := reportView{
		ID:      report.ID,
		Started: report.Started.Format(time.RFC3339),
		Passed:  report.Passed(),
	}

	for _, res := range report.Results {
		ev := environmentView{
			Environment: res.Environment,
			Passed:      res.Passed,
			Stage:       string(res.Stage),
		}
		if res.Err != nil {
			ev.Error = res.Err.Error()
		}
		for _, v := range res.Violations {
			ev.Violations = append(ev.Violations, v.String())
		}
		view.Environments = append(view.Environments, ev)
	}

	return view
}
