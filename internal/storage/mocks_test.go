package storage

import (
	"fmt"
	"io"
	"strings"

	"github.com/digitalocean/go-libvirt"
)

// fakeLibvirt is an in-memory stand-in for the libvirt storage APIs.
// Pools and volumes live in nested maps so tests can drive the Manager
// end to end and then inspect the resulting state.
type fakeLibvirt struct {
	pools map[string]*fakePool
}

type fakePool struct {
	uuid    libvirt.UUID
	state   libvirt.StoragePoolState
	xml     string
	volumes map[string]*fakeVolume
}

type fakeVolume struct {
	path     string
	xml      string
	capacity uint64
	data     []byte
}

func newFakeLibvirt() *fakeLibvirt {
	return &fakeLibvirt{pools: make(map[string]*fakePool)}
}

func newTestManager() (*Manager, *fakeLibvirt) {
	f := newFakeLibvirt()
	return NewManager(f), f
}

func (f *fakeLibvirt) pool(name string) (*fakePool, error) {
	p, ok := f.pools[name]
	if !ok {
		return nil, fmt.Errorf("storage pool not found: %s", name)
	}
	return p, nil
}

func (f *fakeLibvirt) volume(pool, name string) (*fakeVolume, error) {
	p, err := f.pool(pool)
	if err != nil {
		return nil, err
	}
	v, ok := p.volumes[name]
	if !ok {
		return nil, fmt.Errorf("storage volume not found: %s", name)
	}
	return v, nil
}

func (f *fakeLibvirt) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	p, err := f.pool(name)
	if err != nil {
		return libvirt.StoragePool{}, err
	}
	return libvirt.StoragePool{Name: name, UUID: p.uuid}, nil
}

func (f *fakeLibvirt) StoragePoolDefineXML(xml string, flags uint32) (libvirt.StoragePool, error) {
	name := xmlTagValue(xml, "name")
	if name == "" {
		return libvirt.StoragePool{}, fmt.Errorf("invalid pool XML: missing name")
	}
	if _, ok := f.pools[name]; ok {
		return libvirt.StoragePool{}, fmt.Errorf("storage pool already exists: %s", name)
	}

	p := &fakePool{
		state:   libvirt.StoragePoolInactive,
		xml:     xml,
		volumes: make(map[string]*fakeVolume),
	}
	copy(p.uuid[:], name)
	f.pools[name] = p

	return libvirt.StoragePool{Name: name, UUID: p.uuid}, nil
}

func (f *fakeLibvirt) StoragePoolCreate(pool libvirt.StoragePool, flags libvirt.StoragePoolCreateFlags) error {
	p, err := f.pool(pool.Name)
	if err != nil {
		return err
	}
	p.state = libvirt.StoragePoolRunning
	return nil
}

func (f *fakeLibvirt) StoragePoolBuild(pool libvirt.StoragePool, flags libvirt.StoragePoolBuildFlags) error {
	_, err := f.pool(pool.Name)
	return err
}

func (f *fakeLibvirt) StoragePoolSetAutostart(pool libvirt.StoragePool, autostart int32) error {
	_, err := f.pool(pool.Name)
	return err
}

func (f *fakeLibvirt) StoragePoolDestroy(pool libvirt.StoragePool) error {
	p, err := f.pool(pool.Name)
	if err != nil {
		return err
	}
	p.state = libvirt.StoragePoolInactive
	return nil
}

func (f *fakeLibvirt) StoragePoolUndefine(pool libvirt.StoragePool) error {
	if _, err := f.pool(pool.Name); err != nil {
		return err
	}
	delete(f.pools, pool.Name)
	return nil
}

func (f *fakeLibvirt) StoragePoolGetInfo(pool libvirt.StoragePool) (uint8, uint64, uint64, uint64, error) {
	p, err := f.pool(pool.Name)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	var allocated uint64
	for _, v := range p.volumes {
		allocated += uint64(len(v.data))
	}
	const capacity = 1 << 40 // 1 TiB
	return uint8(p.state), capacity, allocated, capacity - allocated, nil
}

func (f *fakeLibvirt) StoragePoolGetXMLDesc(pool libvirt.StoragePool, flags libvirt.StorageXMLFlags) (string, error) {
	p, err := f.pool(pool.Name)
	if err != nil {
		return "", err
	}
	return p.xml, nil
}

func (f *fakeLibvirt) StoragePoolListAllVolumes(pool libvirt.StoragePool, needResults int32, flags uint32) ([]libvirt.StorageVol, uint32, error) {
	p, err := f.pool(pool.Name)
	if err != nil {
		return nil, 0, err
	}
	var vols []libvirt.StorageVol
	for name := range p.volumes {
		vols = append(vols, libvirt.StorageVol{Pool: pool.Name, Name: name})
	}
	return vols, uint32(len(vols)), nil
}

func (f *fakeLibvirt) StoragePoolRefresh(pool libvirt.StoragePool, flags uint32) error {
	_, err := f.pool(pool.Name)
	return err
}

func (f *fakeLibvirt) StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error) {
	if _, err := f.volume(pool.Name, name); err != nil {
		return libvirt.StorageVol{}, err
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name}, nil
}

func (f *fakeLibvirt) StorageVolCreateXML(pool libvirt.StoragePool, xml string, flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error) {
	p, err := f.pool(pool.Name)
	if err != nil {
		return libvirt.StorageVol{}, err
	}

	name := xmlTagValue(xml, "name")
	if name == "" {
		return libvirt.StorageVol{}, fmt.Errorf("invalid volume XML: missing name")
	}
	if _, ok := p.volumes[name]; ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage volume already exists: %s", name)
	}

	p.volumes[name] = &fakeVolume{
		path:     "/var/lib/libvirt/images/homestead/" + pool.Name + "/" + name,
		xml:      xml,
		capacity: 1 << 30,
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name}, nil
}

func (f *fakeLibvirt) StorageVolDelete(vol libvirt.StorageVol, flags libvirt.StorageVolDeleteFlags) error {
	p, err := f.pool(vol.Pool)
	if err != nil {
		return err
	}
	if _, ok := p.volumes[vol.Name]; !ok {
		return fmt.Errorf("storage volume not found: %s", vol.Name)
	}
	delete(p.volumes, vol.Name)
	return nil
}

func (f *fakeLibvirt) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	v, err := f.volume(vol.Pool, vol.Name)
	if err != nil {
		return "", err
	}
	return v.path, nil
}

func (f *fakeLibvirt) StorageVolGetInfo(vol libvirt.StorageVol) (int8, uint64, uint64, error) {
	v, err := f.volume(vol.Pool, vol.Name)
	if err != nil {
		return 0, 0, 0, err
	}
	return 0, v.capacity, uint64(len(v.data)), nil
}

func (f *fakeLibvirt) StorageVolGetXMLDesc(vol libvirt.StorageVol, flags uint32) (string, error) {
	v, err := f.volume(vol.Pool, vol.Name)
	if err != nil {
		return "", err
	}
	return v.xml, nil
}

func (f *fakeLibvirt) StorageVolUpload(vol libvirt.StorageVol, reader io.Reader, offset, length uint64, flags libvirt.StorageVolUploadFlags) error {
	v, err := f.volume(vol.Pool, vol.Name)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	v.data = data
	return nil
}

func (f *fakeLibvirt) ConnectListAllStoragePools(needResults int32, flags libvirt.ConnectListAllStoragePoolsFlags) ([]libvirt.StoragePool, uint32, error) {
	var pools []libvirt.StoragePool
	for name, p := range f.pools {
		pools = append(pools, libvirt.StoragePool{Name: name, UUID: p.uuid})
	}
	return pools, uint32(len(pools)), nil
}

// xmlTagValue pulls the text of the first <tag>...</tag> element. Enough
// for the fake to learn pool and volume names without a full parser.
func xmlTagValue(xml, tag string) string {
	openTag, closeTag := "<"+tag+">", "</"+tag+">"
	start := strings.Index(xml, openTag)
	if start == -1 {
		return ""
	}
	start += len(openTag)
	end := strings.Index(xml[start:], closeTag)
	if end == -1 {
		return ""
	}
	return xml[start : start+end]
}
