// Package naming provides the naming conventions homestead uses for libvirt
// resources: deterministic MAC addresses and tap interface names derived
// from a VM's IP, and the fixed volume naming pattern.
//
// Deriving names from the IP keeps them stable across destroy/recreate
// cycles and unique per address on the hypervisor.
package naming

import (
	"fmt"
	"net"
	"strings"
)

// MACFromIP calculates a deterministic MAC address from an IP address using
// the locally administered be:ef: prefix.
//
// Example: IP 10.55.22.22 → MAC be:ef:0a:37:16:16
func MACFromIP(ip string) (string, error) {
	ipv4, err := parseIPv4(ip)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("be:ef:%02x:%02x:%02x:%02x",
		ipv4[0], ipv4[1], ipv4[2], ipv4[3]), nil
}

// InterfaceNameFromIP calculates a deterministic tap interface name from an
// IP address. Format: vm{hex_octets} (10 chars total, within the Linux
// 15-char interface name limit).
//
// Example: IP 10.55.22.22 → vm0a371616
func InterfaceNameFromIP(ip string) (string, error) {
	ipv4, err := parseIPv4(ip)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("vm%02x%02x%02x%02x",
		ipv4[0], ipv4[1], ipv4[2], ipv4[3]), nil
}

// parseIPv4 parses a bare address or IP/CIDR string into its 4-byte form.
func parseIPv4(ip string) (net.IP, error) {
	ipStr := ip
	if strings.Contains(ip, "/") {
		ipAddr, _, err := net.ParseCIDR(ip)
		if err != nil {
			return nil, fmt.Errorf("invalid IP/CIDR: %w", err)
		}
		ipStr = ipAddr.String()
	}

	parsedIP := net.ParseIP(ipStr)
	if parsedIP == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipStr)
	}

	ipv4 := parsedIP.To4()
	if ipv4 == nil {
		return nil, fmt.Errorf("not an IPv4 address: %s", ipStr)
	}

	return ipv4, nil
}

// VolumeNameBoot returns the volume name for a VM's boot disk.
// Format: {vmName}_boot.qcow2
func VolumeNameBoot(vmName string) string {
	return fmt.Sprintf("%s_boot.qcow2", vmName)
}

// VolumeNameCloudInit returns the volume name for a VM's cloud-init seed ISO.
// Format: {vmName}_cloudinit.iso
func VolumeNameCloudInit(vmName string) string {
	return fmt.Sprintf("%s_cloudinit.iso", vmName)
}

// VolumePrefix returns the prefix shared by all of a VM's volumes, used to
// find them during cleanup.
func VolumePrefix(vmName string) string {
	return vmName + "_"
}
