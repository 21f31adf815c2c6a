package storage

import (
	"context"
	"strings"
	"testing"
)

func qcow2Image(t *testing.T) string {
	t.Helper()
	data := append([]byte{0x51, 0x46, 0x49, 0xfb, 0x00, 0x00, 0x00, 0x03}, make([]byte, 504)...)
	return writeImage(t, "image.qcow2", data)
}

func rawImage(t *testing.T) string {
	t.Helper()
	return writeImage(t, "image.raw", bootSector(512))
}

func imagesPoolManager(t *testing.T) (*Manager, *fakeLibvirt) {
	t.Helper()
	mgr, lv := newTestManager()
	if err := mgr.CreatePool(context.Background(), DefaultImagesPool, PoolTypeDir, DefaultImagesPath); err != nil {
		t.Fatalf("failed to create images pool: %v", err)
	}
	return mgr, lv
}

func TestImportImage(t *testing.T) {
	ctx := context.Background()

	t.Run("qcow2", func(t *testing.T) {
		mgr, lv := imagesPoolManager(t)

		if err := mgr.ImportImage(ctx, qcow2Image(t), "fedora-43.qcow2"); err != nil {
			t.Fatalf("ImportImage() error = %v", err)
		}

		exists, err := mgr.ImageExists(ctx, "fedora-43.qcow2")
		if err != nil || !exists {
			t.Errorf("image missing after import: exists=%v err=%v", exists, err)
		}
		if vol := lv.pools[DefaultImagesPool].volumes["fedora-43.qcow2"]; len(vol.data) == 0 {
			t.Error("image data was not uploaded")
		}
	})

	t.Run("bootable raw", func(t *testing.T) {
		mgr, _ := imagesPoolManager(t)

		if err := mgr.ImportImage(ctx, rawImage(t), "ubuntu-24.04.raw"); err != nil {
			t.Fatalf("ImportImage() error = %v", err)
		}
	})

	t.Run("missing pool", func(t *testing.T) {
		mgr, _ := newTestManager()

		if err := mgr.ImportImage(ctx, qcow2Image(t), "fedora-43.qcow2"); err == nil {
			t.Fatal("expected error when images pool does not exist")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		mgr, _ := imagesPoolManager(t)

		if err := mgr.ImportImage(ctx, "/nonexistent/image.qcow2", "fedora-43.qcow2"); err == nil {
			t.Fatal("expected error for missing source file")
		}
	})
}

func TestImportImageRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		file      func(*testing.T) string
		imageName string
		errMsg    string
	}{
		{
			name:      "name without extension",
			file:      qcow2Image,
			imageName: "fedora-43",
			errMsg:    "must have .qcow2 or .raw extension",
		},
		{
			name:      "name with unknown extension",
			file:      qcow2Image,
			imageName: "fedora-43.img",
			errMsg:    "must have .qcow2 or .raw extension",
		},
		{
			name:      "qcow2 file declared as raw",
			file:      qcow2Image,
			imageName: "fedora-43.raw",
			errMsg:    "format mismatch",
		},
		{
			name:      "raw file declared as qcow2",
			file:      rawImage,
			imageName: "ubuntu-24.04.qcow2",
			errMsg:    "format mismatch",
		},
		{
			name: "non-bootable data file",
			file: func(t *testing.T) string {
				return writeImage(t, "data.raw", make([]byte, 512))
			},
			imageName: "data.raw",
			errMsg:    "failed to detect image format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, lv := imagesPoolManager(t)

			err := mgr.ImportImage(ctx, tt.file(t), tt.imageName)
			if err == nil {
				t.Fatal("expected import to be rejected")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %v, want substring %q", err, tt.errMsg)
			}

			// A rejected import must leave nothing behind.
			if len(lv.pools[DefaultImagesPool].volumes) != 0 {
				t.Error("rejected import left a volume in the images pool")
			}
		})
	}
}

func TestListImages(t *testing.T) {
	ctx := context.Background()
	mgr, _ := imagesPoolManager(t)

	for _, name := range []string{"fedora-43.qcow2", "ubuntu-24.04.qcow2"} {
		err := mgr.CreateVolume(ctx, DefaultImagesPool, VolumeSpec{
			Name:       name,
			Type:       VolumeTypeBaseImage,
			Format:     VolumeFormatQCOW2,
			CapacityGB: 10,
		})
		if err != nil {
			t.Fatalf("failed to create image volume: %v", err)
		}
	}

	images, err := mgr.ListImages(ctx)
	if err != nil {
		t.Fatalf("ListImages() error = %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("ListImages() returned %d images, want 2", len(images))
	}
	for _, img := range images {
		if img.Type != VolumeTypeBaseImage {
			t.Errorf("image %s type = %q, want %q", img.Name, img.Type, VolumeTypeBaseImage)
		}
		if img.Format != VolumeFormatQCOW2 {
			t.Errorf("image %s format = %q, want %q", img.Name, img.Format, VolumeFormatQCOW2)
		}
	}
}

func TestDeleteImage(t *testing.T) {
	ctx := context.Background()
	mgr, _ := imagesPoolManager(t)

	err := mgr.CreateVolume(ctx, DefaultImagesPool, VolumeSpec{
		Name:       "fedora-43.qcow2",
		Type:       VolumeTypeBaseImage,
		Format:     VolumeFormatQCOW2,
		CapacityGB: 10,
	})
	if err != nil {
		t.Fatalf("failed to create image volume: %v", err)
	}

	if err := mgr.DeleteImage(ctx, "fedora-43.qcow2", false); err != nil {
		t.Fatalf("DeleteImage() error = %v", err)
	}

	if err := mgr.DeleteImage(ctx, "fedora-43.qcow2", false); err == nil {
		t.Error("expected error deleting an image twice")
	}
}

func TestImageExistsAndPath(t *testing.T) {
	ctx := context.Background()
	mgr, _ := imagesPoolManager(t)

	err := mgr.CreateVolume(ctx, DefaultImagesPool, VolumeSpec{
		Name:       "fedora-43.qcow2",
		Type:       VolumeTypeBaseImage,
		Format:     VolumeFormatQCOW2,
		CapacityGB: 10,
	})
	if err != nil {
		t.Fatalf("failed to create image volume: %v", err)
	}

	exists, err := mgr.ImageExists(ctx, "fedora-43.qcow2")
	if err != nil || !exists {
		t.Errorf("ImageExists() = %v, %v, want true, nil", exists, err)
	}

	exists, err = mgr.ImageExists(ctx, "nonexistent.qcow2")
	if err != nil || exists {
		t.Errorf("ImageExists() = %v, %v, want false, nil", exists, err)
	}

	path, err := mgr.GetImagePath(ctx, "fedora-43.qcow2")
	if err != nil {
		t.Fatalf("GetImagePath() error = %v", err)
	}
	if path == "" {
		t.Error("GetImagePath() returned empty path")
	}
}
