package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/digitalocean/go-libvirt"
)

// LibvirtClient is the subset of the libvirt RPC surface the storage
// manager needs. *libvirt.Libvirt satisfies it; tests substitute a fake.
type LibvirtClient interface {
	ConnectListAllStoragePools(needResults int32, flags libvirt.ConnectListAllStoragePoolsFlags) ([]libvirt.StoragePool, uint32, error)
	StoragePoolLookupByName(name string) (libvirt.StoragePool, error)
	StoragePoolDefineXML(xml string, flags uint32) (libvirt.StoragePool, error)
	StoragePoolBuild(pool libvirt.StoragePool, flags libvirt.StoragePoolBuildFlags) error
	StoragePoolCreate(pool libvirt.StoragePool, flags libvirt.StoragePoolCreateFlags) error
	StoragePoolSetAutostart(pool libvirt.StoragePool, autostart int32) error
	StoragePoolDestroy(pool libvirt.StoragePool) error
	StoragePoolUndefine(pool libvirt.StoragePool) error
	StoragePoolGetInfo(pool libvirt.StoragePool) (state uint8, capacity, allocation, available uint64, err error)
	StoragePoolGetXMLDesc(pool libvirt.StoragePool, flags libvirt.StorageXMLFlags) (string, error)
	StoragePoolListAllVolumes(pool libvirt.StoragePool, needResults int32, flags uint32) ([]libvirt.StorageVol, uint32, error)
	StoragePoolRefresh(pool libvirt.StoragePool, flags uint32) error
	StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error)
	StorageVolCreateXML(pool libvirt.StoragePool, xml string, flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
	StorageVolDelete(vol libvirt.StorageVol, flags libvirt.StorageVolDeleteFlags) error
	StorageVolGetPath(vol libvirt.StorageVol) (string, error)
	StorageVolGetInfo(vol libvirt.StorageVol) (typ int8, capacity, allocation uint64, err error)
	StorageVolGetXMLDesc(vol libvirt.StorageVol, flags uint32) (string, error)
	StorageVolUpload(vol libvirt.StorageVol, r io.Reader, offset, length uint64, flags libvirt.StorageVolUploadFlags) error
}

// Manager handles pool, volume, and base image operations against a
// single libvirt connection.
type Manager struct {
	client LibvirtClient
}

// NewManager returns a Manager backed by the given libvirt client.
func NewManager(client LibvirtClient) *Manager {
	return &Manager{client: client}
}

// EnsureDefaultPools creates the homestead images and VMs pools if they
// do not exist yet. Safe to call on every invocation.
func (m *Manager) EnsureDefaultPools(ctx context.Context) error {
	if err := m.EnsurePool(ctx, DefaultImagesPool, PoolTypeDir, DefaultImagesPath); err != nil {
		return fmt.Errorf("failed to ensure images pool: %w", err)
	}
	if err := m.EnsurePool(ctx, DefaultVMsPool, PoolTypeDir, DefaultVMsPath); err != nil {
		return fmt.Errorf("failed to ensure VMs pool: %w", err)
	}
	return nil
}
