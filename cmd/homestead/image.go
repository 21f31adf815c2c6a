package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbweber/homestead/internal/storage"
)

// Image management commands
var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage base images",
	Long: `Manage base OS images in the homestead-images storage pool.

Base images are used as backing files for VM boot disks, allowing
quick VM creation without duplicating disk space.`,
}

func init() {
	imageCmd.AddCommand(imageImportCmd)
	imageCmd.AddCommand(imageListCmd)
	imageCmd.AddCommand(imageDeleteCmd)
	imageCmd.AddCommand(imageInfoCmd)
}

// imageManager connects and returns a storage manager with default pools
// in place. The caller owns the client.
func imageManager(ctx context.Context) (*storage.Manager, func(), error) {
	client, err := connect()
	if err != nil {
		return nil, nil, err
	}

	mgr := storage.NewManager(client.Libvirt())
	if err := mgr.EnsureDefaultPools(ctx); err != nil {
		closeClient(client)
		return nil, nil, fmt.Errorf("failed to ensure default pools: %w", err)
	}

	return mgr, func() { closeClient(client) }, nil
}

var imageImportCmd = &cobra.Command{
	Use:   "import <source-path> <name>",
	Short: "Import an image into the homestead-images pool",
	Long: `Import a base OS image from a local file into the homestead-images pool.

The image will be stored in the homestead-images pool and can be referenced
as base_image when creating VMs. The name must carry a .qcow2 or .raw
extension matching the image's actual format.

Example:
  homestead image import /path/to/fedora-43.qcow2 fedora-43.qcow2`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sourcePath := args[0]
		imageName := args[1]

		fmt.Printf("Importing image from %s as %s...\n", sourcePath, imageName)

		ctx := context.Background()
		mgr, done, err := imageManager(ctx)
		if err != nil {
			return err
		}
		defer done()

		exists, err := mgr.ImageExists(ctx, imageName)
		if err != nil {
			return fmt.Errorf("failed to check if image exists: %w", err)
		}
		if exists {
			return fmt.Errorf("image %s already exists", imageName)
		}

		if err := mgr.ImportImage(ctx, sourcePath, imageName); err != nil {
			return fmt.Errorf("failed to import image: %w", err)
		}

		fmt.Printf("✓ Image %s imported successfully\n", imageName)
		return nil
	},
}

var imageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all images in the homestead-images pool",
	Long: `List all base OS images stored in the homestead-images pool.

Shows image name, format, size, and path for each image.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		mgr, done, err := imageManager(ctx)
		if err != nil {
			return err
		}
		defer done()

		images, err := mgr.ListImages(ctx)
		if err != nil {
			return fmt.Errorf("failed to list images: %w", err)
		}

		if len(images) == 0 {
			fmt.Println("No images found in homestead-images pool")
			return nil
		}

		fmt.Printf("%-30s %-10s %10s  %s\n", "NAME", "FORMAT", "SIZE", "PATH")
		fmt.Println(strings.Repeat("-", 100))

		for _, img := range images {
			fmt.Printf("%-30s %-10s %8.1fGB  %s\n",
				img.Name,
				img.Format,
				img.CapacityGB(),
				img.Path,
			)
		}

		fmt.Printf("\nTotal: %d image(s)\n", len(images))
		return nil
	},
}

var imageDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an image from the homestead-images pool",
	Long: `Delete a base OS image from the homestead-images pool.

Warning: This will permanently delete the image. VMs that use this image
as a backing file may become unusable.

Example:
  homestead image delete fedora-43.qcow2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		imageName := args[0]

		fmt.Printf("Deleting image %s...\n", imageName)

		ctx := context.Background()
		mgr, done, err := imageManager(ctx)
		if err != nil {
			return err
		}
		defer done()

		exists, err := mgr.ImageExists(ctx, imageName)
		if err != nil {
			return fmt.Errorf("failed to check if image exists: %w", err)
		}
		if !exists {
			return fmt.Errorf("image %s not found", imageName)
		}

		if err := mgr.DeleteImage(ctx, imageName, false); err != nil {
			return fmt.Errorf("failed to delete image: %w", err)
		}

		fmt.Printf("✓ Image %s deleted successfully\n", imageName)
		return nil
	},
}

var imageInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show detailed information about an image",
	Long: `Display detailed information about a base OS image in the
homestead-images pool.

Shows image name, format, capacity, allocation, path, and other metadata.

Example:
  homestead image info fedora-43.qcow2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		imageName := args[0]

		ctx := context.Background()
		mgr, done, err := imageManager(ctx)
		if err != nil {
			return err
		}
		defer done()

		images, err := mgr.ListImages(ctx)
		if err != nil {
			return fmt.Errorf("failed to list images: %w", err)
		}

		var imageInfo *storage.VolumeInfo
		for i := range images {
			if images[i].Name == imageName {
				imageInfo = &images[i]
				break
			}
		}
		if imageInfo == nil {
			return fmt.Errorf("image %s not found", imageName)
		}

		fmt.Printf("Image: %s\n", imageInfo.Name)
		fmt.Printf("Pool: %s\n", imageInfo.Pool)
		fmt.Printf("Format: %s\n", imageInfo.Format)
		fmt.Printf("Type: %s\n", imageInfo.Type)
		fmt.Printf("Capacity: %.2f GB (%d bytes)\n", imageInfo.CapacityGB(), imageInfo.Capacity)
		fmt.Printf("Allocation: %.2f GB (%d bytes)\n", imageInfo.AllocationGB(), imageInfo.Allocation)
		fmt.Printf("Path: %s\n", imageInfo.Path)

		return nil
	},
}
