package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// formatFromImageName maps an image name's extension to the format it
// declares. Image names must carry .qcow2 or .raw so the format is
// visible in volume listings.
func formatFromImageName(imageName string) (VolumeFormat, error) {
	switch filepath.Ext(imageName) {
	case ".qcow2":
		return VolumeFormatQCOW2, nil
	case ".raw":
		return VolumeFormatRaw, nil
	default:
		return "", fmt.Errorf("image name %s must have .qcow2 or .raw extension", imageName)
	}
}

// ImportImage imports a base image from a local file into the
// homestead-images pool. The file's actual format is detected from its
// magic bytes and must match the extension of imageName, so a mislabeled
// image is rejected before it can break a backing chain.
func (m *Manager) ImportImage(ctx context.Context, filePath, imageName string) error {
	declared, err := formatFromImageName(imageName)
	if err != nil {
		return err
	}

	detected, err := DetectImageFormat(filePath)
	if err != nil {
		return fmt.Errorf("failed to detect image format: %w", err)
	}
	if detected != declared {
		return fmt.Errorf("format mismatch: %s is %s but name %s declares %s",
			filePath, detected, imageName, declared)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read image file: %w", err)
	}

	// Round the capacity up to the next whole GB.
	sizeGB := uint64(len(data))/bytesPerGiB + 1

	spec := VolumeSpec{
		Name:       imageName,
		Type:       VolumeTypeBaseImage,
		Format:     detected,
		CapacityGB: sizeGB,
	}
	if err := m.CreateVolume(ctx, DefaultImagesPool, spec); err != nil {
		return fmt.Errorf("failed to create image volume: %w", err)
	}

	if err := m.WriteVolumeData(ctx, DefaultImagesPool, imageName, data); err != nil {
		_ = m.DeleteVolume(ctx, DefaultImagesPool, imageName)
		return fmt.Errorf("failed to upload image data: %w", err)
	}

	return nil
}

// ListImages lists all base images in the homestead-images pool.
func (m *Manager) ListImages(ctx context.Context) ([]VolumeInfo, error) {
	images, err := m.ListVolumes(ctx, DefaultImagesPool)
	if err != nil {
		return nil, err
	}
	for i := range images {
		images[i].Type = VolumeTypeBaseImage
	}
	return images, nil
}

// DeleteImage deletes a base image from the homestead-images pool.
//
// TODO: without force, refuse when the image backs an existing boot
// volume. Needs a scan of the VMs pool's backing stores.
func (m *Manager) DeleteImage(ctx context.Context, imageName string, force bool) error {
	_ = force
	return m.DeleteVolume(ctx, DefaultImagesPool, imageName)
}

// GetImagePath gets the full filesystem path for a base image.
func (m *Manager) GetImagePath(ctx context.Context, imageName string) (string, error) {
	return m.GetVolumePath(ctx, DefaultImagesPool, imageName)
}

// ImageExists checks if a base image exists in the homestead-images pool.
func (m *Manager) ImageExists(ctx context.Context, imageName string) (bool, error) {
	return m.VolumeExists(ctx, DefaultImagesPool, imageName)
}
