// Package cloudinit generates cloud-init NoCloud seed data for VM
// provisioning.
//
// The seed consists of three documents (user-data, meta-data,
// network-config) generated from a resolved environment spec, packed into
// an ISO9660 image labeled CIDATA per the NoCloud datasource specification.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/homestead/internal/config"
	"github.com/jbweber/homestead/internal/naming"
)

// UserData represents the cloud-config user-data structure. It is marshaled
// to YAML and prefixed with the "#cloud-config" header.
//
// See https://cloudinit.readthedocs.io/en/latest/explanation/format.html#cloud-config-data
type UserData struct {
	Hostname          string    `yaml:"hostname"`
	SSHAuthorizedKeys []string  `yaml:"ssh_authorized_keys,omitempty"`
	Users             []User    `yaml:"users,omitempty"`
	Chpasswd          *Chpasswd `yaml:"chpasswd,omitempty"`
	Packages          []string  `yaml:"packages,omitempty"`
	SSHPasswordAuth   bool      `yaml:"ssh_pwauth"`
	Output            *Output   `yaml:"output,omitempty"`
}

// User declares an account to create at first boot.
type User struct {
	Name              string   `yaml:"name"`
	Sudo              string   `yaml:"sudo,omitempty"`
	Shell             string   `yaml:"shell,omitempty"`
	LockPasswd        bool     `yaml:"lock_passwd"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"`
}

// Chpasswd configures user password settings.
type Chpasswd struct {
	Expire bool   `yaml:"expire"` // Whether to expire passwords on first login
	List   string `yaml:"list"`   // Format: "username:hash"
}

// Output configures cloud-init output logging.
type Output struct {
	All string `yaml:"all"`
}

// MetaData represents the cloud-init meta-data structure.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// NetworkConfig represents the netplan v2 network configuration.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/network-config-format-v2.html
type NetworkConfig struct {
	Version   int                       `yaml:"version"`
	Ethernets map[string]EthernetConfig `yaml:"ethernets"`
}

// EthernetConfig represents a single ethernet interface configuration.
type EthernetConfig struct {
	Match       MatchConfig   `yaml:"match"`
	Addresses   []string      `yaml:"addresses"`
	Routes      []RouteConfig `yaml:"routes,omitempty"`
	Nameservers *Nameservers  `yaml:"nameservers,omitempty"`
}

// MatchConfig matches an interface by MAC address.
type MatchConfig struct {
	MACAddress string `yaml:"macaddress"`
}

// RouteConfig represents a static route.
type RouteConfig struct {
	To  string `yaml:"to"`
	Via string `yaml:"via"`
}

// Nameservers represents DNS server configuration.
type Nameservers struct {
	Addresses []string `yaml:"addresses"`
}

// GenerateUserData generates the user-data YAML content from the resolved
// spec, including the "#cloud-config" header.
//
// The SSH public key referenced by ssh_key_path is inlined. When
// cloud_init_user is set, a dedicated account is created with sudo access
// and the key; otherwise the key goes to the image's default user.
func GenerateUserData(spec *config.ResolvedSpec) (string, error) {
	if spec == nil {
		return "", fmt.Errorf("spec cannot be nil")
	}

	userData := UserData{
		Hostname:        spec.Name,
		Packages:        spec.Packages,
		SSHPasswordAuth: spec.CloudInitPassword != "",
		Output: &Output{
			All: "| tee -a /var/log/cloud-init-output.log",
		},
	}

	var keys []string
	if spec.SSHKeyPath != "" {
		data, err := os.ReadFile(spec.SSHKeyPath)
		if err != nil {
			return "", fmt.Errorf("failed to read SSH public key: %w", err)
		}
		key := strings.TrimSpace(string(data))
		if key != "" {
			keys = append(keys, key)
		}
	}

	if spec.CloudInitUser != "" {
		userData.Users = []User{
			{
				Name:              spec.CloudInitUser,
				Sudo:              "ALL=(ALL) NOPASSWD:ALL",
				Shell:             "/bin/bash",
				LockPasswd:        false,
				SSHAuthorizedKeys: keys,
			},
		}
		if spec.CloudInitPassword != "" {
			userData.Chpasswd = &Chpasswd{
				Expire: false,
				List:   fmt.Sprintf("%s:%s", spec.CloudInitUser, spec.CloudInitPassword),
			}
		}
	} else {
		userData.SSHAuthorizedKeys = keys
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}

	// The #cloud-config header is required by the cloud-init spec.
	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData generates the meta-data YAML content.
//
// The instance-id is the VM name: cloud-init uses instance-id to detect
// first boot, so a VM destroyed and recreated under the same name re-runs
// cloud-init.
func GenerateMetaData(spec *config.ResolvedSpec) (string, error) {
	if spec == nil {
		return "", fmt.Errorf("spec cannot be nil")
	}

	metaData := MetaData{
		InstanceID:    spec.Name,
		LocalHostname: spec.Name,
	}

	yamlBytes, err := yaml.Marshal(&metaData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}

	return string(yamlBytes), nil
}

// GenerateNetworkConfig generates the network-config YAML content using the
// netplan v2 format, matching the interface by its derived MAC address.
func GenerateNetworkConfig(spec *config.ResolvedSpec) (string, error) {
	if spec == nil {
		return "", fmt.Errorf("spec cannot be nil")
	}
	if spec.NetworkAddress == "" {
		return "", fmt.Errorf("network_address is required")
	}

	mac, err := naming.MACFromIP(spec.NetworkAddress)
	if err != nil {
		return "", fmt.Errorf("failed to calculate MAC address: %w", err)
	}

	address := spec.NetworkAddress
	if !strings.Contains(address, "/") {
		// Bare addresses get a /24 so netplan accepts them.
		address += "/24"
	}

	ethConfig := EthernetConfig{
		Match:     MatchConfig{MACAddress: mac},
		Addresses: []string{address},
	}
	if spec.Gateway != "" {
		ethConfig.Routes = []RouteConfig{
			{To: "0.0.0.0/0", Via: spec.Gateway},
		}
	}
	if len(spec.DNSServers) > 0 {
		ethConfig.Nameservers = &Nameservers{Addresses: spec.DNSServers}
	}

	networkConfig := NetworkConfig{
		Version: 2,
		Ethernets: map[string]EthernetConfig{
			"eth0": ethConfig,
		},
	}

	yamlBytes, err := yaml.Marshal(&networkConfig)
	if err != nil {
		return "", fmt.Errorf("failed to marshal network-config to YAML: %w", err)
	}

	return string(yamlBytes), nil
}
