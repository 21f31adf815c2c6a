package lifecycle

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/rs/zerolog/log"

	"github.com/jbweber/homestead/internal/config"
	"github.com/jbweber/homestead/internal/metadata"
)

// VMInfo represents observed information about a VM.
type VMInfo struct {
	Name      string
	State     string
	Autostart bool
	CPUs      uint16
	MemoryMB  uint64

	// Spec is the resolved spec stored with the domain at creation time.
	// Nil for domains not managed by homestead.
	Spec *config.ResolvedSpec
}

// List returns information about all domains (running and stopped).
func List(_ context.Context, lv LibvirtClient) ([]VMInfo, error) {
	// NeedResults: 1 means populate the domains slice
	// Flags: 0 means all domains (active and inactive)
	domains, _, err := lv.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	vms := make([]VMInfo, 0, len(domains))
	for _, domain := range domains {
		info, err := domainInfo(lv, domain)
		if err != nil {
			log.Warn().Err(err).Str("domain", domain.Name).Msg("failed to get domain info")
			continue
		}
		vms = append(vms, info)
	}

	return vms, nil
}

// Get returns information about a single VM by name, including the
// resolved spec stored in its domain metadata if present.
func Get(_ context.Context, lv LibvirtClient, name string) (*VMInfo, error) {
	domain, err := lv.DomainLookupByName(name)
	if err != nil {
		return nil, fmt.Errorf("vm %q not found: %w", name, err)
	}

	info, err := domainInfo(lv, domain)
	if err != nil {
		return nil, err
	}

	return &info, nil
}

// domainInfo collects state, resource, and spec information for a domain.
func domainInfo(lv LibvirtClient, domain libvirt.Domain) (VMInfo, error) {
	state, _, err := lv.DomainGetState(domain, 0)
	if err != nil {
		return VMInfo{}, fmt.Errorf("failed to get domain state: %w", err)
	}

	_, _, memory, nrVirtCPU, _, err := lv.DomainGetInfo(domain)
	if err != nil {
		return VMInfo{}, fmt.Errorf("failed to get domain info: %w", err)
	}

	autostart, err := lv.DomainGetAutostart(domain)
	if err != nil {
		log.Warn().Err(err).Str("domain", domain.Name).Msg("failed to get autostart")
		autostart = 0
	}

	info := VMInfo{
		Name:      domain.Name,
		State:     StateToString(state),
		Autostart: autostart != 0,
		CPUs:      nrVirtCPU,
		MemoryMB:  memory / 1024, // KiB to MiB
	}

	// Spec metadata is only present on homestead-managed domains
	if spec, err := metadata.Load(lv, domain); err == nil {
		info.Spec = spec
	}

	return info, nil
}
