package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/jbweber/homestead/internal/config"
	"github.com/jbweber/homestead/internal/validate"
)

// Stage identifies where in the sequence an environment failed.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageValidate Stage = "validate"
	StageRender   Stage = "render"
	StageExecute  Stage = "execute"
)

// EnvironmentResult is the outcome of one environment's run.
type EnvironmentResult struct {
	Environment string
	Passed      bool

	// Stage is set on failure to the stage that failed.
	Stage Stage

	// Violations holds everything the validator reported, warnings
	// included, even for passing environments.
	Violations []validate.Violation

	// Err is the failure cause; nil when Passed.
	Err error
}

// RunReport aggregates results across a pipeline run.
type RunReport struct {
	ID      string
	Started time.Time
	Results []EnvironmentResult
}

// NewRunReport creates an empty report with a fresh run ID.
func NewRunReport() *RunReport {
	return &RunReport{
		ID:      uuid.NewString(),
		Started: time.Now(),
	}
}

// Add appends one environment's result.
func (r *RunReport) Add(result EnvironmentResult) {
	r.Results = append(r.Results, result)
}

// Passed reports whether every environment passed.
func (r *RunReport) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// ExitCode maps the aggregated outcome to a process exit code: 0 when all
// environments pass, 2 when any environment failed on missing/unreadable
// configuration, 1 for any other failure.
func (r *RunReport) ExitCode() int {
	code := 0
	for _, res := range r.Results {
		if res.Passed {
			continue
		}
		if config.IsNotFound(res.Err) {
			return 2
		}
		code = 1
	}
	return code
}
