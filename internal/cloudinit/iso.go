package cloudinit

import (
	"bytes"
	"fmt"

	"github.com/kdomanski/iso9660"

	"github.com/jbweber/homestead/internal/config"
)

// GenerateISO creates a cloud-init NoCloud seed ISO from the resolved spec.
//
// The image contains user-data, meta-data, and network-config in its root
// directory, with the volume label CIDATA required by the NoCloud
// datasource.
//
// Returns the ISO image as a byte slice, ready to be uploaded to libvirt
// storage.
func GenerateISO(spec *config.ResolvedSpec) ([]byte, error) {
	if spec == nil {
		return nil, fmt.Errorf("spec cannot be nil")
	}

	userData, err := GenerateUserData(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to generate user-data: %w", err)
	}

	metaData, err := GenerateMetaData(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to generate meta-data: %w", err)
	}

	networkConfig, err := GenerateNetworkConfig(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to generate network-config: %w", err)
	}

	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to create ISO writer: %w", err)
	}
	defer func() {
		// The ISO bytes are already in the buffer by the time cleanup of the
		// writer's temp files can fail, so the error is not actionable.
		_ = writer.Cleanup()
	}()

	if err := writer.AddFile(bytes.NewReader([]byte(userData)), "user-data"); err != nil {
		return nil, fmt.Errorf("failed to add user-data: %w", err)
	}
	if err := writer.AddFile(bytes.NewReader([]byte(metaData)), "meta-data"); err != nil {
		return nil, fmt.Errorf("failed to add meta-data: %w", err)
	}
	if err := writer.AddFile(bytes.NewReader([]byte(networkConfig)), "network-config"); err != nil {
		return nil, fmt.Errorf("failed to add network-config: %w", err)
	}

	var buf bytes.Buffer
	// The CIDATA label must be uppercase per the NoCloud specification.
	if err := writer.WriteTo(&buf, "CIDATA"); err != nil {
		return nil, fmt.Errorf("failed to write ISO image: %w", err)
	}

	return buf.Bytes(), nil
}
