// Package config resolves layered environment configuration into a single
// effective VM specification.
//
// Configuration lives in a directory with the following layout:
//
//	<config-dir>/defaults.yaml            shared base parameters
//	<config-dir>/environments/<env>.yaml  per-environment overrides
//
// Resolution precedence, highest to lowest: explicit runtime overrides,
// the environment file, the shared defaults file. Unknown keys are carried
// through unvalidated; constraint checking is a separate phase (see the
// validate package).
package config

import (
	"fmt"
	"strings"
)

// Limits holds the resource ceilings a resolved spec is checked against.
// These are normally declared only in defaults.yaml.
type Limits struct {
	MaxMemoryMiB  int `yaml:"max_memory,omitempty"`
	MaxVCPUs      int `yaml:"max_vcpus,omitempty"`
	MaxDiskSizeGB int `yaml:"max_disk_size,omitempty"`
}

// ResolvedSpec is the effective parameter set for one environment, produced
// by merging the configuration layers. It is immutable for the duration of
// a run; runtime overrides are merged in during resolution, never written
// back to disk.
type ResolvedSpec struct {
	// Environment is the name of the environment this spec was resolved for.
	Environment string `yaml:"-"`

	Name              string   `yaml:"vm_name"`
	MemoryMiB         int      `yaml:"memory"`
	VCPUs             int      `yaml:"vcpus"`
	DiskSizeGB        int      `yaml:"disk_size"`
	NetworkAddress    string   `yaml:"network_address"`
	Gateway           string   `yaml:"gateway,omitempty"`
	Bridge            string   `yaml:"bridge,omitempty"`
	DNSServers        []string `yaml:"dns_servers,omitempty"`
	SSHKeyPath        string   `yaml:"ssh_key_path"`
	SSHPrivateKeyPath string   `yaml:"ssh_private_key_path,omitempty"`
	Packages          []string `yaml:"packages,omitempty"`
	CloudInitUser     string   `yaml:"cloud_init_user,omitempty"`
	CloudInitPassword string   `yaml:"cloud_init_password,omitempty"`

	// BaseImage names a volume in the images pool used as the backing file
	// for the boot disk. Empty means an empty boot disk.
	BaseImage   string `yaml:"base_image,omitempty"`
	StoragePool string `yaml:"storage_pool,omitempty"`

	// MinLibvirtVersion pins the hypervisor version; connections to an older
	// daemon fail fast instead of attempting runtime reconciliation.
	MinLibvirtVersion string `yaml:"min_libvirt_version,omitempty"`

	Limits Limits `yaml:",inline"`

	// Extra carries keys not covered by the schema, passed through
	// unvalidated so callers can layer their own parameters.
	Extra map[string]any `yaml:"-"`
}

// knownKeys is the set of top-level keys bound to ResolvedSpec fields.
// Anything else lands in Extra.
var knownKeys = map[string]struct{}{
	"vm_name":              {},
	"memory":               {},
	"vcpus":                {},
	"disk_size":            {},
	"network_address":      {},
	"gateway":              {},
	"bridge":               {},
	"dns_servers":          {},
	"ssh_key_path":         {},
	"ssh_private_key_path": {},
	"packages":             {},
	"cloud_init_user":      {},
	"cloud_init_password":  {},
	"base_image":           {},
	"storage_pool":         {},
	"min_libvirt_version":  {},
	"max_memory":           {},
	"max_vcpus":            {},
	"max_disk_size":        {},
}

// Default pool names for VM volumes and base images.
const (
	DefaultVMsPool    = "homestead-vms"
	DefaultImagesPool = "homestead-images"
)

// Normalize sanitizes user input to consistent formats and applies defaults.
// Called automatically by Resolve before the spec is returned.
func (s *ResolvedSpec) Normalize() {
	s.Name = strings.ToLower(strings.TrimSpace(s.Name))
	s.CloudInitUser = strings.TrimSpace(s.CloudInitUser)

	// Bridge names are not normalized - they must match hypervisor config exactly

	if s.StoragePool == "" {
		s.StoragePool = DefaultVMsPool
	}
}

// GetStoragePool returns the storage pool for VM volumes, using the default
// if unset.
func (s *ResolvedSpec) GetStoragePool() string {
	if s.StoragePool == "" {
		return DefaultVMsPool
	}
	return s.StoragePool
}

// IP returns the address portion of NetworkAddress without any CIDR suffix.
func (s *ResolvedSpec) IP() string {
	if i := strings.IndexByte(s.NetworkAddress, '/'); i >= 0 {
		return s.NetworkAddress[:i]
	}
	return s.NetworkAddress
}

// String identifies the spec in log and error output.
func (s *ResolvedSpec) String() string {
	return fmt.Sprintf("%s (environment %s)", s.Name, s.Environment)
}
