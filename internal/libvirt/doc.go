// Package libvirt provides a client wrapper for interacting with libvirt.
//
// This package wraps github.com/digitalocean/go-libvirt to provide:
//   - Connection management (connect, disconnect, ping, version pinning)
//   - Domain XML generation from resolved environment specs
//
// The Client type provides a high-level interface for libvirt operations,
// while exposing the underlying *libvirt.Libvirt for packages that need
// direct access to the libvirt API.
//
// Connection Management:
//
// The package establishes connections to the local libvirt daemon via Unix
// socket:
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.VerifyVersion("8.6"); err != nil {
//	    return err
//	}
//
// Consumer-Side Interfaces:
//
// This package does not define interfaces. Consumers (internal/lifecycle,
// internal/storage, internal/metadata) define their own client interfaces
// specifying only the operations they need. The *libvirt.Libvirt type
// satisfies these interfaces implicitly, enabling clean dependency
// injection in tests.
package libvirt
