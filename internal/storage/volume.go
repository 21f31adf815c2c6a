package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// lookupVolume resolves a pool name and volume name to a libvirt volume
// handle, with consistent error wrapping for both lookup steps.
func (m *Manager) lookupVolume(poolName, volumeName string) (libvirt.StorageVol, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return libvirt.StorageVol{}, fmt.Errorf("pool not found: %w", err)
	}
	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return libvirt.StorageVol{}, fmt.Errorf("volume not found: %w", err)
	}
	return vol, nil
}

// CreateVolume creates a volume in the named pool according to spec.
func (m *Manager) CreateVolume(ctx context.Context, poolName string, spec VolumeSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid volume spec: %w", err)
	}

	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	volumeXML, err := m.buildVolumeXML(poolName, spec)
	if err != nil {
		return fmt.Errorf("failed to generate volume XML: %w", err)
	}

	if _, err := m.client.StorageVolCreateXML(pool, volumeXML, 0); err != nil {
		return fmt.Errorf("failed to create volume: %w", err)
	}
	return nil
}

// DeleteVolume removes a volume from the pool.
func (m *Manager) DeleteVolume(ctx context.Context, poolName, volumeName string) error {
	vol, err := m.lookupVolume(poolName, volumeName)
	if err != nil {
		return err
	}
	if err := m.client.StorageVolDelete(vol, 0); err != nil {
		return fmt.Errorf("failed to delete volume: %w", err)
	}
	return nil
}

// ListVolumes returns info for every volume in the named pool. Volumes
// whose path or sizing cannot be read are skipped rather than failing
// the whole listing.
func (m *Manager) ListVolumes(ctx context.Context, poolName string) ([]VolumeInfo, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	volumes, _, err := m.client.StoragePoolListAllVolumes(pool, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	var infos []VolumeInfo
	for _, vol := range volumes {
		path, err := m.client.StorageVolGetPath(vol)
		if err != nil {
			continue
		}
		_, capacity, allocation, err := m.client.StorageVolGetInfo(vol)
		if err != nil {
			continue
		}
		infos = append(infos, VolumeInfo{
			Name:       vol.Name,
			Path:       path,
			Pool:       poolName,
			Format:     m.volumeFormat(vol),
			Capacity:   capacity,
			Allocation: allocation,
		})
	}
	return infos, nil
}

// volumeFormat reads a volume's format from its XML description. Empty
// when the description cannot be fetched or carries no format.
func (m *Manager) volumeFormat(vol libvirt.StorageVol) VolumeFormat {
	desc, err := m.client.StorageVolGetXMLDesc(vol, 0)
	if err != nil {
		return ""
	}
	var doc libvirtxml.StorageVolume
	if err := doc.Unmarshal(desc); err != nil {
		return ""
	}
	if doc.Target == nil || doc.Target.Format == nil {
		return ""
	}
	return VolumeFormat(doc.Target.Format.Type)
}

// GetVolumePath returns the filesystem path backing a volume.
func (m *Manager) GetVolumePath(ctx context.Context, poolName, volumeName string) (string, error) {
	vol, err := m.lookupVolume(poolName, volumeName)
	if err != nil {
		return "", err
	}
	path, err := m.client.StorageVolGetPath(vol)
	if err != nil {
		return "", fmt.Errorf("failed to get volume path: %w", err)
	}
	return path, nil
}

// WriteVolumeData uploads data into an existing volume. Used to place
// cloud-init seed ISOs without touching the host filesystem directly.
func (m *Manager) WriteVolumeData(ctx context.Context, poolName, volumeName string, data []byte) error {
	vol, err := m.lookupVolume(poolName, volumeName)
	if err != nil {
		return err
	}
	if err := m.client.StorageVolUpload(vol, bytes.NewReader(data), 0, uint64(len(data)), 0); err != nil {
		return fmt.Errorf("failed to upload data to volume: %w", err)
	}
	return nil
}

// VolumeExists reports whether a volume exists in the named pool. A
// missing pool is an error; a missing volume is not.
func (m *Manager) VolumeExists(ctx context.Context, poolName, volumeName string) (bool, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return false, fmt.Errorf("pool not found: %w", err)
	}
	if _, err := m.client.StorageVolLookupByName(pool, volumeName); err != nil {
		return false, nil
	}
	return true, nil
}

// buildVolumeXML renders the libvirt volume document for spec. The
// backing store path, if any, is resolved against the live connection
// so a bad backing reference fails before the volume is created.
func (m *Manager) buildVolumeXML(poolName string, spec VolumeSpec) (string, error) {
	// Volumes must be readable by the QEMU process user.
	uid, gid := GetQEMUUserGroup()

	vol := &libvirtxml.StorageVolume{
		Type: "file",
		Name: spec.Name,
		Capacity: &libvirtxml.StorageVolumeSize{
			Value: spec.CapacityGB * bytesPerGiB,
			Unit:  "B",
		},
		Target: &libvirtxml.StorageVolumeTarget{
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(spec.Format),
			},
			Permissions: &libvirtxml.StorageVolumeTargetPermissions{
				Owner: uid,
				Group: gid,
				Mode:  "0644",
			},
		},
	}

	if spec.BackingVolume != "" {
		backingPool := spec.BackingPool
		if backingPool == "" {
			backingPool = poolName
		}
		backingPath, err := m.GetVolumePath(context.Background(), backingPool, spec.BackingVolume)
		if err != nil {
			return "", fmt.Errorf("failed to get backing volume path: %w", err)
		}
		vol.BackingStore = &libvirtxml.StorageVolumeBackingStore{
			Path: backingPath,
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(spec.Format),
			},
		}
	}

	xmlBytes, err := vol.Marshal()
	if err != nil {
		return "", err
	}
	xml := strings.TrimPrefix(string(xmlBytes), "<?xml version=\"1.0\" encoding=\"UTF-8\"?>")
	return strings.TrimSpace(xml), nil
}
