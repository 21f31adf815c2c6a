// Package validate checks a resolved VM specification against static
// constraints before any mutating action.
//
// Validation never short-circuits: every check runs and all violations are
// reported together, so a caller can fix everything in one pass. Violations
// carry a severity; only ERROR-severity violations block execution.
package validate

import (
	"fmt"
	"net"
	"os"
	"regexp"

	"golang.org/x/crypto/ssh"

	"github.com/jbweber/homestead/internal/config"
)

// Severity classifies a violation.
type Severity string

const (
	// SeverityError blocks progression to the executor.
	SeverityError Severity = "ERROR"
	// SeverityWarning is reported but non-blocking.
	SeverityWarning Severity = "WARNING"
)

// Violation is a single failed constraint, tagged with the field it applies
// to.
type Violation struct {
	Field    string
	Severity Severity
	Message  string
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s] %s: %s", v.Severity, v.Field, v.Message)
}

// Result is the full set of violations for one spec. An empty result means
// the spec passed.
type Result struct {
	Violations []Violation
}

// OK reports whether the result contains no ERROR-severity violations.
// Warnings do not affect OK.
func (r *Result) OK() bool {
	return len(r.Errors()) == 0
}

// Errors returns only the ERROR-severity violations.
func (r *Result) Errors() []Violation {
	var errs []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			errs = append(errs, v)
		}
	}
	return errs
}

// Warnings returns only the WARNING-severity violations.
func (r *Result) Warnings() []Violation {
	var warns []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarning {
			warns = append(warns, v)
		}
	}
	return warns
}

func (r *Result) add(field string, severity Severity, format string, args ...any) {
	r.Violations = append(r.Violations, Violation{
		Field:    field,
		Severity: severity,
		Message:  fmt.Sprintf(format, args...),
	})
}

// namePattern matches libvirt domain name requirements: start and end with
// alphanumeric, hyphens and underscores inside.
var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9_-]*[a-z0-9])?$`)

// Validate checks spec against static constraints and returns all
// violations. reserved maps network addresses (without CIDR suffix) claimed
// by other declared environments to the environment claiming them; pass nil
// to skip the cross-environment conflict check.
//
// Validate is total: it never returns an error for malformed but well-typed
// input, only violations.
func Validate(spec *config.ResolvedSpec, reserved map[string]string) *Result {
	result := &Result{}

	checkRequired(spec, result)
	checkLimits(spec, result)
	checkSSHKeys(spec, result)
	checkNetwork(spec, reserved, result)
	checkCloudInit(spec, result)

	return result
}

func checkRequired(spec *config.ResolvedSpec, result *Result) {
	if spec.Name == "" {
		result.add("vm_name", SeverityError, "is required")
	} else if !namePattern.MatchString(spec.Name) {
		result.add("vm_name", SeverityError,
			"must start and end with alphanumeric characters and contain only alphanumeric, hyphens, or underscores, got %q", spec.Name)
	}

	if spec.MemoryMiB <= 0 {
		result.add("memory", SeverityError, "must be > 0, got %d", spec.MemoryMiB)
	}
	if spec.VCPUs <= 0 {
		result.add("vcpus", SeverityError, "must be > 0, got %d", spec.VCPUs)
	}
	if spec.DiskSizeGB <= 0 {
		result.add("disk_size", SeverityError, "must be > 0, got %d", spec.DiskSizeGB)
	}
	if spec.NetworkAddress == "" {
		result.add("network_address", SeverityError, "is required")
	}
	if spec.SSHKeyPath == "" {
		result.add("ssh_key_path", SeverityError, "is required")
	}
}

func checkLimits(spec *config.ResolvedSpec, result *Result) {
	limits := spec.Limits

	if limits.MaxMemoryMiB > 0 && spec.MemoryMiB > limits.MaxMemoryMiB {
		result.add("memory", SeverityError,
			"%d MiB exceeds the configured ceiling of %d MiB", spec.MemoryMiB, limits.MaxMemoryMiB)
	}
	if limits.MaxVCPUs > 0 && spec.VCPUs > limits.MaxVCPUs {
		result.add("vcpus", SeverityError,
			"%d exceeds the configured ceiling of %d", spec.VCPUs, limits.MaxVCPUs)
	}
	if limits.MaxDiskSizeGB > 0 && spec.DiskSizeGB > limits.MaxDiskSizeGB {
		result.add("disk_size", SeverityError,
			"%d GB exceeds the configured ceiling of %d GB", spec.DiskSizeGB, limits.MaxDiskSizeGB)
	}
}

func checkSSHKeys(spec *config.ResolvedSpec, result *Result) {
	if spec.SSHKeyPath != "" {
		data, err := os.ReadFile(spec.SSHKeyPath)
		if err != nil {
			result.add("ssh_key_path", SeverityError, "not readable: %v", err)
		} else if _, _, _, _, err := ssh.ParseAuthorizedKey(data); err != nil {
			result.add("ssh_key_path", SeverityError, "not a valid SSH public key: %v", err)
		}
	}

	if spec.SSHPrivateKeyPath == "" {
		result.add("ssh_private_key_path", SeverityWarning,
			"not set; post-boot connectivity checks will be unavailable")
	} else if _, err := os.Stat(spec.SSHPrivateKeyPath); err != nil {
		result.add("ssh_private_key_path", SeverityWarning, "not accessible: %v", err)
	}
}

func checkNetwork(spec *config.ResolvedSpec, reserved map[string]string, result *Result) {
	if spec.NetworkAddress == "" {
		return
	}

	// Accept both bare addresses and IP/CIDR notation.
	var parsed net.IP
	if ip, _, err := net.ParseCIDR(spec.NetworkAddress); err == nil {
		parsed = ip
	} else {
		parsed = net.ParseIP(spec.NetworkAddress)
	}

	if parsed == nil {
		result.add("network_address", SeverityError,
			"not a valid IP address or IP/CIDR: %q", spec.NetworkAddress)
		return
	}
	if parsed.To4() == nil {
		result.add("network_address", SeverityError,
			"only IPv4 addresses are supported, got %q", spec.NetworkAddress)
		return
	}

	if env, taken := reserved[parsed.String()]; taken {
		result.add("network_address", SeverityError,
			"%s is already reserved by environment %q", parsed.String(), env)
	}

	if spec.Gateway != "" && net.ParseIP(spec.Gateway) == nil {
		result.add("gateway", SeverityError, "not a valid IP address: %q", spec.Gateway)
	}
	for i, dns := range spec.DNSServers {
		if net.ParseIP(dns) == nil {
			result.add(fmt.Sprintf("dns_servers[%d]", i), SeverityError,
				"not a valid IP address: %q", dns)
		}
	}
}

func checkCloudInit(spec *config.ResolvedSpec, result *Result) {
	if spec.CloudInitPassword != "" && spec.CloudInitUser == "" {
		result.add("cloud_init_user", SeverityError,
			"is required when cloud_init_password is set")
	}

	// A crypt hash starts with $; anything else would land in the seed in
	// clear text.
	if spec.CloudInitPassword != "" && spec.CloudInitPassword[0] != '$' {
		result.add("cloud_init_password", SeverityWarning,
			"does not look like a crypt hash; it will be stored as-is in the cloud-init seed")
	}
}
