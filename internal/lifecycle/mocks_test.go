package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/homestead/internal/storage"
)

// mockLibvirtClient is a mock implementation of the LibvirtClient interface
// for testing.
type mockLibvirtClient struct {
	mu sync.Mutex

	// Configurable behavior
	domainLookupByNameFunc    func(name string) (libvirt.Domain, error)
	domainDefineXMLFunc       func(xml string) (libvirt.Domain, error)
	domainSetAutostartFunc    func(dom libvirt.Domain, autostart int32) error
	domainCreateFunc          func(dom libvirt.Domain) error
	domainGetStateFunc        func(dom libvirt.Domain, flags uint32) (int32, int32, error)
	domainShutdownFunc        func(dom libvirt.Domain) error
	domainDestroyFunc         func(dom libvirt.Domain) error
	domainUndefineFlagsFunc   func(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error
	connectListAllDomainsFunc func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	domainGetInfoFunc         func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)
	domainGetAutostartFunc    func(dom libvirt.Domain) (int32, error)
	domainSetMetadataFunc     func(dom libvirt.Domain, typ int32, md libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error
	domainGetMetadataFunc     func(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error)

	// Call tracking
	domainLookupByNameCalls  []string
	domainDefineXMLCalls     []string
	domainSetAutostartCalls  []libvirt.Domain
	domainCreateCalls        []libvirt.Domain
	domainGetStateCalls      []libvirt.Domain
	domainShutdownCalls      []libvirt.Domain
	domainDestroyCalls       []libvirt.Domain
	domainUndefineFlagsCalls []libvirt.Domain
	domainSetMetadataCalls   int
}

// newMockLibvirtClient creates a mock libvirt client with default behavior:
// the domain does not exist until defined, then exists in shutoff state.
func newMockLibvirtClient() *mockLibvirtClient {
	m := &mockLibvirtClient{}

	m.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		// Simulates real behavior: lookup fails before define, succeeds after
		if len(m.domainDefineXMLCalls) > 0 {
			return libvirt.Domain{Name: name}, nil
		}
		return libvirt.Domain{}, fmt.Errorf("domain not found: %s", name)
	}

	m.domainDefineXMLFunc = func(xml string) (libvirt.Domain, error) {
		return libvirt.Domain{Name: "test-vm"}, nil
	}

	m.domainSetAutostartFunc = func(dom libvirt.Domain, autostart int32) error {
		return nil
	}

	m.domainCreateFunc = func(dom libvirt.Domain) error {
		return nil
	}

	m.domainGetStateFunc = func(dom libvirt.Domain, flags uint32) (int32, int32, error) {
		return domainStateShutoff, 0, nil
	}

	m.domainShutdownFunc = func(dom libvirt.Domain) error {
		return nil
	}

	m.domainDestroyFunc = func(dom libvirt.Domain) error {
		return nil
	}

	m.domainUndefineFlagsFunc = func(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
		return nil
	}

	m.connectListAllDomainsFunc = func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
		return nil, 0, nil
	}

	m.domainGetInfoFunc = func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
		return uint8(domainStateShutoff), 2048 * 1024, 2048 * 1024, 2, 0, nil
	}

	m.domainGetAutostartFunc = func(dom libvirt.Domain) (int32, error) {
		return 1, nil
	}

	m.domainSetMetadataFunc = func(dom libvirt.Domain, typ int32, md libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error {
		return nil
	}

	m.domainGetMetadataFunc = func(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error) {
		return "", fmt.Errorf("no metadata")
	}

	return m
}

func (m *mockLibvirtClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainLookupByNameCalls = append(m.domainLookupByNameCalls, name)
	return m.domainLookupByNameFunc(name)
}

func (m *mockLibvirtClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDefineXMLCalls = append(m.domainDefineXMLCalls, xml)
	return m.domainDefineXMLFunc(xml)
}

func (m *mockLibvirtClient) DomainSetAutostart(dom libvirt.Domain, autostart int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainSetAutostartCalls = append(m.domainSetAutostartCalls, dom)
	return m.domainSetAutostartFunc(dom, autostart)
}

func (m *mockLibvirtClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainCreateCalls = append(m.domainCreateCalls, dom)
	return m.domainCreateFunc(dom)
}

func (m *mockLibvirtClient) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainGetStateCalls = append(m.domainGetStateCalls, dom)
	return m.domainGetStateFunc(dom, flags)
}

func (m *mockLibvirtClient) DomainShutdown(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainShutdownCalls = append(m.domainShutdownCalls, dom)
	return m.domainShutdownFunc(dom)
}

func (m *mockLibvirtClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDestroyCalls = append(m.domainDestroyCalls, dom)
	return m.domainDestroyFunc(dom)
}

func (m *mockLibvirtClient) DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainUndefineFlagsCalls = append(m.domainUndefineFlagsCalls, dom)
	return m.domainUndefineFlagsFunc(dom, flags)
}

func (m *mockLibvirtClient) ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectListAllDomainsFunc(needResults, flags)
}

func (m *mockLibvirtClient) DomainGetInfo(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainGetInfoFunc(dom)
}

func (m *mockLibvirtClient) DomainGetAutostart(dom libvirt.Domain) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainGetAutostartFunc(dom)
}

func (m *mockLibvirtClient) DomainSetMetadata(dom libvirt.Domain, typ int32, md libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainSetMetadataCalls++
	return m.domainSetMetadataFunc(dom, typ, md, key, uri, flags)
}

func (m *mockLibvirtClient) DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainGetMetadataFunc(dom, typ, uri, flags)
}

// mockStorageManager is a mock implementation of the StorageManager
// interface for testing.
type mockStorageManager struct {
	mu sync.Mutex

	// Configurable behavior
	ensureDefaultPoolsFunc func(ctx context.Context) error
	volumeExistsFunc       func(ctx context.Context, poolName, volumeName string) (bool, error)
	createVolumeFunc       func(ctx context.Context, poolName string, spec storage.VolumeSpec) error
	deleteVolumeFunc       func(ctx context.Context, poolName, volumeName string) error
	imageExistsFunc        func(ctx context.Context, imageName string) (bool, error)
	writeVolumeDataFunc    func(ctx context.Context, poolName, volumeName string, data []byte) error
	listVolumesFunc        func(ctx context.Context, poolName string) ([]storage.VolumeInfo, error)

	// Call tracking
	ensureDefaultPoolsCalls int
	volumeExistsCalls       []string // format: "pool/volume"
	createVolumeCalls       []storage.VolumeSpec
	deleteVolumeCalls       []string // format: "pool/volume"
	imageExistsCalls        []string
	writeVolumeDataCalls    []string // format: "pool/volume"
	listVolumesCalls        []string // pool names
}

// newMockStorageManager creates a mock storage manager with default
// behavior: pools exist, images exist, volumes don't, all writes succeed.
func newMockStorageManager() *mockStorageManager {
	return &mockStorageManager{
		ensureDefaultPoolsFunc: func(ctx context.Context) error {
			return nil
		},
		volumeExistsFunc: func(ctx context.Context, poolName, volumeName string) (bool, error) {
			return false, nil
		},
		createVolumeFunc: func(ctx context.Context, poolName string, spec storage.VolumeSpec) error {
			return nil
		},
		deleteVolumeFunc: func(ctx context.Context, poolName, volumeName string) error {
			return nil
		},
		imageExistsFunc: func(ctx context.Context, imageName string) (bool, error) {
			return true, nil
		},
		writeVolumeDataFunc: func(ctx context.Context, poolName, volumeName string, data []byte) error {
			return nil
		},
		listVolumesFunc: func(ctx context.Context, poolName string) ([]storage.VolumeInfo, error) {
			return []storage.VolumeInfo{}, nil
		},
	}
}

func (m *mockStorageManager) EnsureDefaultPools(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureDefaultPoolsCalls++
	return m.ensureDefaultPoolsFunc(ctx)
}

func (m *mockStorageManager) VolumeExists(ctx context.Context, poolName, volumeName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumeExistsCalls = append(m.volumeExistsCalls, poolName+"/"+volumeName)
	return m.volumeExistsFunc(ctx, poolName, volumeName)
}

func (m *mockStorageManager) CreateVolume(ctx context.Context, poolName string, spec storage.VolumeSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createVolumeCalls = append(m.createVolumeCalls, spec)
	return m.createVolumeFunc(ctx, poolName, spec)
}

func (m *mockStorageManager) DeleteVolume(ctx context.Context, poolName, volumeName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteVolumeCalls = append(m.deleteVolumeCalls, poolName+"/"+volumeName)
	return m.deleteVolumeFunc(ctx, poolName, volumeName)
}

func (m *mockStorageManager) ImageExists(ctx context.Context, imageName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imageExistsCalls = append(m.imageExistsCalls, imageName)
	return m.imageExistsFunc(ctx, imageName)
}

func (m *mockStorageManager) WriteVolumeData(ctx context.Context, poolName, volumeName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeVolumeDataCalls = append(m.writeVolumeDataCalls, poolName+"/"+volumeName)
	return m.writeVolumeDataFunc(ctx, poolName, volumeName, data)
}

func (m *mockStorageManager) ListVolumes(ctx context.Context, poolName string) ([]storage.VolumeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listVolumesCalls = append(m.listVolumesCalls, poolName)
	return m.listVolumesFunc(ctx, poolName)
}
