package storage

import "fmt"

// bytesPerGiB converts between the GB-denominated fields callers work
// with and the byte counts libvirt reports.
const bytesPerGiB = 1 << 30

// Default pool layout. VM disks and base images live in separate dir
// pools so that deleting a VM can never touch a shared image.
const (
	DefaultImagesPool = "homestead-images"
	DefaultVMsPool    = "homestead-vms"

	DefaultImagesPath = "/var/lib/libvirt/images/homestead/images"
	DefaultVMsPath    = "/var/lib/libvirt/images/homestead/vms"
)

// PoolType is a libvirt storage pool backend type.
type PoolType string

const (
	PoolTypeDir     PoolType = "dir"
	PoolTypeLVM     PoolType = "lvm"
	PoolTypeZFS     PoolType = "zfs"
	PoolTypeNFS     PoolType = "netfs"
	PoolTypeCeph    PoolType = "rbd"
	PoolTypeISCSI   PoolType = "iscsi"
	PoolTypeGluster PoolType = "gluster"
)

// VolumeType says what role a volume plays for a VM.
type VolumeType string

const (
	VolumeTypeBoot      VolumeType = "boot"
	VolumeTypeCloudInit VolumeType = "cloudinit"
	VolumeTypeBaseImage VolumeType = "base-image"
)

// VolumeFormat is the on-disk image format.
type VolumeFormat string

const (
	VolumeFormatQCOW2 VolumeFormat = "qcow2"
	VolumeFormatRaw   VolumeFormat = "raw"
)

// VolumeSpec describes a volume to be created.
type VolumeSpec struct {
	Name       string
	Type       VolumeType
	Format     VolumeFormat
	CapacityGB uint64

	// BackingVolume names a qcow2 volume to use as a copy-on-write
	// backing file. BackingPool is the pool that holds it; empty means
	// the same pool the new volume is created in.
	BackingVolume string
	BackingPool   string
}

// Validate reports whether the spec can be turned into a volume.
func (v *VolumeSpec) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("volume name is required")
	}
	if v.Type == "" {
		return fmt.Errorf("volume type is required")
	}
	switch v.Format {
	case VolumeFormatQCOW2, VolumeFormatRaw:
	case "":
		return fmt.Errorf("volume format is required")
	default:
		return fmt.Errorf("invalid volume format: %s (must be qcow2 or raw)", v.Format)
	}
	// Cloud-init seed ISOs are sized by their uploaded content.
	if v.CapacityGB == 0 && v.Type != VolumeTypeCloudInit {
		return fmt.Errorf("volume capacity must be greater than 0")
	}
	if v.BackingVolume != "" && v.Format != VolumeFormatQCOW2 {
		return fmt.Errorf("backing volumes are only supported for qcow2 format")
	}
	if v.BackingPool != "" && v.BackingVolume == "" {
		return fmt.Errorf("backing pool specified without backing volume")
	}
	return nil
}

// PoolInfo is a point-in-time snapshot of a storage pool.
type PoolInfo struct {
	Name       string
	Type       PoolType
	Path       string
	UUID       string
	State      string
	Autostart  bool
	Persistent bool
	Capacity   uint64
	Allocation uint64
	Available  uint64
}

func (p *PoolInfo) CapacityGB() float64   { return float64(p.Capacity) / bytesPerGiB }
func (p *PoolInfo) AllocationGB() float64 { return float64(p.Allocation) / bytesPerGiB }
func (p *PoolInfo) AvailableGB() float64  { return float64(p.Available) / bytesPerGiB }

// VolumeInfo is a point-in-time snapshot of a storage volume.
type VolumeInfo struct {
	Name       string
	Type       VolumeType
	Format     VolumeFormat
	Path       string
	Pool       string
	Capacity   uint64
	Allocation uint64
}

func (v *VolumeInfo) CapacityGB() float64   { return float64(v.Capacity) / bytesPerGiB }
func (v *VolumeInfo) AllocationGB() float64 { return float64(v.Allocation) / bytesPerGiB }
