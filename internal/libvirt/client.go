package libvirt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

// DefaultSocketPath is the local qemu:///system daemon socket.
const DefaultSocketPath = "/var/run/libvirt/libvirt-sock"

// Client wraps a go-libvirt connection and provides high-level operations
// for managing VMs.
type Client struct {
	libvirt *libvirt.Libvirt
}

// Connect establishes a connection to the local libvirt daemon.
// It returns a Client that must be closed via Close() when done.
//
// If socketPath is empty, defaults to DefaultSocketPath (qemu:///system).
// If timeout is zero, defaults to 5 seconds.
func Connect(socketPath string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	)

	l := libvirt.NewWithDialer(dialer)
	if err := l.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)
	}

	return &Client{libvirt: l}, nil
}

// Close closes the libvirt connection and releases resources.
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	if c.libvirt == nil {
		return nil
	}

	if err := c.libvirt.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}

	return nil
}

// Libvirt returns the underlying go-libvirt client for direct API access.
// This should be used sparingly; prefer higher-level methods on Client.
func (c *Client) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// Ping verifies the connection is still alive by calling a simple libvirt API.
func (c *Client) Ping() error {
	if c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}

	_, err := c.libvirt.ConnectGetLibVersion()
	if err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}

	return nil
}

// VerifyVersion checks the daemon's libvirt version against a pinned
// minimum ("major.minor" or "major.minor.patch") and fails fast on
// mismatch. An empty minVersion disables the check.
func (c *Client) VerifyVersion(minVersion string) error {
	if minVersion == "" {
		return nil
	}

	min, err := parseVersion(minVersion)
	if err != nil {
		return fmt.Errorf("invalid min_libvirt_version %q: %w", minVersion, err)
	}

	current, err := c.libvirt.ConnectGetLibVersion()
	if err != nil {
		return fmt.Errorf("failed to get libvirt version: %w", err)
	}

	if current < min {
		return fmt.Errorf("libvirt daemon version %s is older than the pinned minimum %s",
			FormatVersion(current), minVersion)
	}
	return nil
}

// parseVersion converts "8.6.0" into libvirt's packed integer form
// (major*1000000 + minor*1000 + patch).
func parseVersion(version string) (uint64, error) {
	parts := strings.Split(version, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("expected major.minor[.patch]")
	}

	var packed uint64
	multipliers := []uint64{1000000, 1000, 1}
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid component %q", part)
		}
		if i > 0 && n > 999 {
			return 0, fmt.Errorf("component %q out of range", part)
		}
		packed += n * multipliers[i]
	}
	return packed, nil
}

// FormatVersion renders libvirt's packed version integer as "major.minor.patch".
func FormatVersion(packed uint64) string {
	return fmt.Sprintf("%d.%d.%d", packed/1000000, (packed%1000000)/1000, packed%1000)
}
