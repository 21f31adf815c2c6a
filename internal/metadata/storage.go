// Package metadata provides storage for resolved VM specifications using
// libvirt's custom XML metadata feature. This allows the spec that produced
// a VM to persist with the domain itself, eliminating the need for external
// state files.
package metadata

import (
	"encoding/xml"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/homestead/internal/config"
)

const (
	// MetadataNamespace is the XML namespace for Homestead metadata.
	MetadataNamespace = "https://github.com/jbweber/homestead"

	// MetadataKey is the key used to store/retrieve metadata from libvirt.
	MetadataKey = "homestead-vm-spec"
)

// Client is the subset of libvirt operations needed for metadata storage.
type Client interface {
	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)
}

// specMetadata is the XML structure for storing spec data in libvirt.
// The spec is stored as YAML text for easy human readability when
// inspecting the domain XML directly.
type specMetadata struct {
	XMLName xml.Name `xml:"metadata"`
	Xmlns   string   `xml:"xmlns,attr"`
	// SpecYAML contains the resolved spec serialized as YAML
	SpecYAML string `xml:",innerxml"`
}

// Store saves the resolved spec to libvirt domain metadata.
// This allows the spec to persist with the VM itself.
func Store(l Client, domain libvirt.Domain, spec *config.ResolvedSpec) error {
	yamlData, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal VM spec to YAML: %w", err)
	}

	md := specMetadata{
		Xmlns:    MetadataNamespace,
		SpecYAML: string(yamlData),
	}

	xmlData, err := xml.MarshalIndent(md, "  ", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata to XML: %w", err)
	}

	err = l.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement), // Type: custom XML element
		libvirt.OptString{string(xmlData)},
		libvirt.OptString{MetadataKey},
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainModificationImpact(0), // flags: replace
	)
	if err != nil {
		return fmt.Errorf("failed to set libvirt domain metadata: %w", err)
	}

	return nil
}

// Load retrieves the resolved spec from libvirt domain metadata.
func Load(l Client, domain libvirt.Domain) (*config.ResolvedSpec, error) {
	xmlStr, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get libvirt domain metadata: %w", err)
	}

	var md specMetadata
	if err := xml.Unmarshal([]byte(xmlStr), &md); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}

	var spec config.ResolvedSpec
	if err := yaml.Unmarshal([]byte(md.SpecYAML), &spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal VM spec from YAML: %w", err)
	}

	return &spec, nil
}
