package lifecycle

import (
	"context"
	"fmt"
	"testing"

	"github.com/digitalocean/go-libvirt"
)

func TestListEmpty(t *testing.T) {
	lv := newMockLibvirtClient()

	vms, err := List(context.Background(), lv)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(vms) != 0 {
		t.Errorf("List() returned %d VMs, want 0", len(vms))
	}
}

func TestList(t *testing.T) {
	lv := newMockLibvirtClient()
	lv.connectListAllDomainsFunc = func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
		return []libvirt.Domain{
			{Name: "web-1"},
			{Name: "db-1"},
		}, 2, nil
	}
	lv.domainGetStateFunc = func(dom libvirt.Domain, flags uint32) (int32, int32, error) {
		if dom.Name == "web-1" {
			return domainStateRunning, 0, nil
		}
		return domainStateShutoff, 0, nil
	}

	vms, err := List(context.Background(), lv)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(vms) != 2 {
		t.Fatalf("List() returned %d VMs, want 2", len(vms))
	}

	if vms[0].Name != "web-1" || vms[0].State != "running" {
		t.Errorf("vms[0] = %s/%s, want web-1/running", vms[0].Name, vms[0].State)
	}
	if vms[1].Name != "db-1" || vms[1].State != "shutoff" {
		t.Errorf("vms[1] = %s/%s, want db-1/shutoff", vms[1].Name, vms[1].State)
	}
	if vms[0].CPUs != 2 || vms[0].MemoryMB != 2048 {
		t.Errorf("vms[0] resources = %d CPUs / %d MiB, want 2 / 2048", vms[0].CPUs, vms[0].MemoryMB)
	}
}

func TestListSkipsBrokenDomains(t *testing.T) {
	lv := newMockLibvirtClient()
	lv.connectListAllDomainsFunc = func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
		return []libvirt.Domain{
			{Name: "ok"},
			{Name: "broken"},
		}, 2, nil
	}
	lv.domainGetStateFunc = func(dom libvirt.Domain, flags uint32) (int32, int32, error) {
		if dom.Name == "broken" {
			return 0, 0, fmt.Errorf("domain disappeared")
		}
		return domainStateRunning, 0, nil
	}

	vms, err := List(context.Background(), lv)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(vms) != 1 || vms[0].Name != "ok" {
		t.Errorf("List() = %v, want just the healthy domain", vms)
	}
}

func TestGetNotFound(t *testing.T) {
	lv := newMockLibvirtClient()

	if _, err := Get(context.Background(), lv, "missing"); err == nil {
		t.Fatal("Get() expected error for missing VM, got nil")
	}
}

func TestGetWithSpecMetadata(t *testing.T) {
	lv := newMockLibvirtClient()
	lv.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		return libvirt.Domain{Name: name}, nil
	}
	lv.domainGetMetadataFunc = func(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error) {
		return `<metadata xmlns="https://github.com/jbweber/homestead">vm_name: web-1
memory: 4096
</metadata>`, nil
	}

	info, err := Get(context.Background(), lv, "web-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if info.Spec == nil {
		t.Fatal("Get() Spec is nil, want stored spec")
	}
	if info.Spec.Name != "web-1" || info.Spec.MemoryMiB != 4096 {
		t.Errorf("stored spec = %s/%d, want web-1/4096", info.Spec.Name, info.Spec.MemoryMiB)
	}
}
