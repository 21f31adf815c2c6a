// Package pipeline sequences Resolver -> Validator -> Executor across
// multiple environments for CI runs.
//
// The driver is collect-all, not fail-fast: a failure in one environment
// is recorded and the run continues, so a single report covers the whole
// matrix. Environments are processed sequentially because concurrent
// operations against the same hypervisor socket risk duplicate address
// and volume allocation.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jbweber/homestead/internal/cloudinit"
	"github.com/jbweber/homestead/internal/config"
	homesteadlibvirt "github.com/jbweber/homestead/internal/libvirt"
	"github.com/jbweber/homestead/internal/lifecycle"
	"github.com/jbweber/homestead/internal/validate"
)

// StateDriver drives a VM toward a target state. Satisfied by
// *lifecycle.Executor.
type StateDriver interface {
	EnsureState(ctx context.Context, spec *config.ResolvedSpec, target lifecycle.State) error
}

// Driver runs the resolve/validate/execute sequence per environment.
type Driver struct {
	// ConfigDir is the layered configuration directory.
	ConfigDir string

	// Overrides are runtime key/value overrides applied to every
	// environment in the run.
	Overrides map[string]string

	// Executor, when set, applies the target state after validation
	// passes. When nil the driver runs in check mode: specs are resolved,
	// validated, and rendered (domain XML and cloud-init seed) without
	// touching the hypervisor.
	Executor StateDriver

	// Target is the state applied in execute mode. Defaults to running.
	Target lifecycle.State
}

// Run processes each environment and returns the aggregated report.
// Environment-level failures are recorded in the report, not returned;
// the error return is reserved for failures of the run itself (e.g. no
// environments given).
func (d *Driver) Run(ctx context.Context, environments []string) (*RunReport, error) {
	if len(environments) == 0 {
		return nil, fmt.Errorf("no environments to run")
	}

	report := NewRunReport()
	for _, env := range environments {
		log.Info().Str("environment", env).Msg("pipeline: processing environment")
		report.Add(d.runEnvironment(ctx, env))
	}

	return report, nil
}

// runEnvironment runs the full sequence for one environment.
func (d *Driver) runEnvironment(ctx context.Context, env string) EnvironmentResult {
	result := EnvironmentResult{Environment: env}

	// Resolve
	spec, err := config.Resolve(d.ConfigDir, env, d.Overrides)
	if err != nil {
		result.Stage = StageResolve
		result.Err = err
		return result
	}

	// Validate against addresses reserved by other environments
	reserved, err := config.ReservedAddresses(d.ConfigDir, env)
	if err != nil {
		result.Stage = StageResolve
		result.Err = err
		return result
	}

	vr := validate.Validate(spec, reserved)
	result.Violations = vr.Violations
	if !vr.OK() {
		result.Stage = StageValidate
		result.Err = fmt.Errorf("%d validation error(s)", len(vr.Errors()))
		return result
	}

	// Execute or dry-run
	if d.Executor != nil {
		target := d.Target
		if target == "" {
			target = lifecycle.StateRunning
		}
		if err := d.Executor.EnsureState(ctx, spec, target); err != nil {
			result.Stage = StageExecute
			result.Err = err
			return result
		}
	} else if err := renderArtifacts(spec); err != nil {
		result.Stage = StageRender
		result.Err = err
		return result
	}

	result.Passed = true
	return result
}

// renderArtifacts exercises artifact generation without side effects.
// This catches spec problems that only surface at create time (bad SSH
// key content, unparseable addresses) while staying safe for CI boxes
// with no hypervisor.
func renderArtifacts(spec *config.ResolvedSpec) error {
	if _, err := homesteadlibvirt.GenerateDomainXML(spec); err != nil {
		return fmt.Errorf("domain XML generation failed: %w", err)
	}
	if _, err := cloudinit.GenerateISO(spec); err != nil {
		return fmt.Errorf("cloud-init seed generation failed: %w", err)
	}
	return nil
}
