// Package lifecycle drives libvirt domains toward declared target states.
//
// The Executor implements a small explicit state machine:
//
//	{absent} -> create -> {present/stopped} -> start -> {running}
//	{running} -> stop -> {stopped} -> destroy -> {absent}
//
// Transitions not on this graph (e.g. absent while running) first
// force-stop, then destroy. All transitions are idempotent: driving a VM
// to a state it already occupies is a no-op success.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/rs/zerolog/log"

	"github.com/jbweber/homestead/internal/config"
	"github.com/jbweber/homestead/internal/naming"
	"github.com/jbweber/homestead/internal/storage"
)

const (
	// DefaultShutdownTimeout is how long to wait for a graceful shutdown
	// before giving up.
	DefaultShutdownTimeout = 30 * time.Second

	// shutdownPollInterval is how often to check domain state while
	// waiting for shutdown.
	shutdownPollInterval = 500 * time.Millisecond
)

// Executor drives VMs toward target lifecycle states.
type Executor struct {
	lv LibvirtClient
	sm StorageManager

	// ShutdownTimeout bounds the wait for graceful shutdown. A stop that
	// does not complete within this window is a failure, not a retry.
	ShutdownTimeout time.Duration
}

// NewExecutor creates an executor backed by a libvirt connection and a
// storage manager.
func NewExecutor(lv LibvirtClient, sm StorageManager) *Executor {
	return &Executor{
		lv:              lv,
		sm:              sm,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// EnsureState drives the VM described by spec toward the target state.
// It inspects the current state first and performs only the transitions
// needed, so repeated calls with the same target are no-ops.
func (e *Executor) EnsureState(ctx context.Context, spec *config.ResolvedSpec, target State) error {
	switch target {
	case StatePresent:
		_, err := e.ensurePresent(ctx, spec)
		return err
	case StateRunning:
		return e.ensureRunning(ctx, spec)
	case StateStopped:
		return e.ensureStopped(ctx, spec)
	case StateAbsent:
		return e.ensureAbsent(ctx, spec.Name, spec.GetStoragePool())
	default:
		return fmt.Errorf("unknown target state %q", target)
	}
}

// ensurePresent makes sure the domain is defined, creating it if needed.
// Returns the domain handle.
func (e *Executor) ensurePresent(ctx context.Context, spec *config.ResolvedSpec) (libvirt.Domain, error) {
	domain, err := e.lv.DomainLookupByName(spec.Name)
	if err == nil {
		log.Debug().Str("vm", spec.Name).Msg("domain already defined")
		return domain, nil
	}

	if err := e.create(ctx, spec); err != nil {
		return libvirt.Domain{}, err
	}

	domain, err = e.lv.DomainLookupByName(spec.Name)
	if err != nil {
		return libvirt.Domain{}, &ExecutionError{VM: spec.Name, Op: "lookup after create", Err: err}
	}
	return domain, nil
}

// ensureRunning makes sure the domain is defined and running.
func (e *Executor) ensureRunning(ctx context.Context, spec *config.ResolvedSpec) error {
	domain, err := e.ensurePresent(ctx, spec)
	if err != nil {
		return err
	}

	state, _, err := e.lv.DomainGetState(domain, 0)
	if err != nil {
		return &ExecutionError{VM: spec.Name, Op: "get domain state", Err: err}
	}

	if state == domainStateRunning {
		log.Debug().Str("vm", spec.Name).Msg("domain already running")
		return nil
	}

	log.Info().Str("vm", spec.Name).Msg("starting VM")
	if err := e.lv.DomainCreate(domain); err != nil {
		return &ExecutionError{VM: spec.Name, Op: "start domain", Err: err}
	}

	return nil
}

// ensureStopped issues a graceful shutdown and waits for the domain to
// reach shutoff. It fails, rather than forcing, if the domain does not
// stop within ShutdownTimeout.
func (e *Executor) ensureStopped(ctx context.Context, spec *config.ResolvedSpec) error {
	domain, err := e.lv.DomainLookupByName(spec.Name)
	if err != nil {
		return &ExecutionError{VM: spec.Name, Op: "lookup domain", Err: fmt.Errorf("not found: %w", err)}
	}

	state, _, err := e.lv.DomainGetState(domain, 0)
	if err != nil {
		return &ExecutionError{VM: spec.Name, Op: "get domain state", Err: err}
	}

	if state == domainStateShutoff {
		log.Debug().Str("vm", spec.Name).Msg("domain already stopped")
		return nil
	}

	log.Info().Str("vm", spec.Name).Dur("timeout", e.ShutdownTimeout).Msg("shutting down VM")
	if err := e.lv.DomainShutdown(domain); err != nil {
		return &ExecutionError{VM: spec.Name, Op: "shutdown domain", Err: err}
	}

	if err := e.waitForShutoff(ctx, domain); err != nil {
		return &ExecutionError{VM: spec.Name, Op: "wait for shutdown", Err: err}
	}

	log.Info().Str("vm", spec.Name).Msg("VM stopped")
	return nil
}

// waitForShutoff polls domain state until shutoff or timeout.
func (e *Executor) waitForShutoff(ctx context.Context, domain libvirt.Domain) error {
	timeout := e.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("domain did not stop within %v: %w", timeout, waitCtx.Err())
		case <-ticker.C:
			state, _, err := e.lv.DomainGetState(domain, 0)
			if err != nil {
				return fmt.Errorf("failed to check state while waiting: %w", err)
			}
			if state == domainStateShutoff {
				return nil
			}
		}
	}
}

// ensureAbsent destroys the VM and removes its volumes.
//
// Absent-on-already-absent is success, not an error. A running domain is
// force-stopped first, then undefined. Volume cleanup is best-effort:
// failures are logged but do not abort the operation.
func (e *Executor) ensureAbsent(ctx context.Context, vmName, pool string) error {
	domain, err := e.lv.DomainLookupByName(vmName)
	if err != nil {
		// Domain already gone. Still sweep volumes in case a previous
		// destroy was interrupted between undefine and volume cleanup.
		log.Debug().Str("vm", vmName).Msg("domain already absent")
		e.deleteVolumes(ctx, vmName, pool)
		return nil
	}

	state, _, err := e.lv.DomainGetState(domain, 0)
	if err != nil {
		return &ExecutionError{VM: vmName, Op: "get domain state", Err: err}
	}

	// Destroy-while-running is an explicit two-step: force stop, then
	// undefine.
	if state == domainStateRunning {
		log.Info().Str("vm", vmName).Msg("force stopping VM")
		if err := e.lv.DomainDestroy(domain); err != nil {
			return &ExecutionError{VM: vmName, Op: "force stop domain", Err: err}
		}
	}

	log.Info().Str("vm", vmName).Msg("undefining domain")
	if err := e.lv.DomainUndefineFlags(domain, libvirt.DomainUndefineNvram); err != nil {
		return &ExecutionError{VM: vmName, Op: "undefine domain", Err: err}
	}

	e.deleteVolumes(ctx, vmName, pool)

	log.Info().Str("vm", vmName).Msg("VM destroyed")
	return nil
}

// deleteVolumes removes all volumes belonging to a VM (prefix match on
// "{vmName}_") from its storage pool.
func (e *Executor) deleteVolumes(ctx context.Context, vmName, pool string) {
	if pool == "" {
		pool = storage.DefaultVMsPool
	}

	volumes, err := e.sm.ListVolumes(ctx, pool)
	if err != nil {
		log.Warn().Err(err).Str("pool", pool).Msg("failed to list volumes for cleanup")
		return
	}

	prefix := naming.VolumePrefix(vmName)
	for _, vol := range volumes {
		if !strings.HasPrefix(vol.Name, prefix) {
			continue
		}
		log.Info().Str("volume", vol.Name).Str("pool", pool).Msg("deleting volume")
		if err := e.sm.DeleteVolume(ctx, pool, vol.Name); err != nil {
			log.Warn().Err(err).Str("volume", vol.Name).Msg("failed to delete volume")
		}
	}
}
