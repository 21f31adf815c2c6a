package lifecycle

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/rs/zerolog/log"

	"github.com/jbweber/homestead/internal/cloudinit"
	"github.com/jbweber/homestead/internal/config"
	homesteadlibvirt "github.com/jbweber/homestead/internal/libvirt"
	"github.com/jbweber/homestead/internal/metadata"
	"github.com/jbweber/homestead/internal/naming"
	"github.com/jbweber/homestead/internal/storage"
)

// create builds a VM from a resolved spec without starting it.
//
// This orchestrates the entire VM creation process:
//  1. Ensure default storage pools exist
//  2. Check the base image is available
//  3. Create the boot volume (backed by the base image)
//  4. Generate and upload the cloud-init seed ISO
//  5. Define the domain in libvirt
//  6. Persist the resolved spec in domain metadata
//  7. Enable autostart
//
// On any failure, attempts to clean up partially created resources.
func (e *Executor) create(ctx context.Context, spec *config.ResolvedSpec) error {
	var (
		bootCreated bool
		seedCreated bool
		domDefined  bool
	)

	pool := spec.GetStoragePool()
	bootVol := naming.VolumeNameBoot(spec.Name)
	seedVol := naming.VolumeNameCloudInit(spec.Name)

	// Cleanup runs on error only
	var createErr error
	defer func() {
		if createErr != nil {
			e.cleanupCreate(ctx, spec.Name, pool, domDefined, bootCreated, seedCreated)
		}
	}()

	// Step 1: Ensure default pools exist
	log.Debug().Msg("ensuring default storage pools")
	if createErr = e.sm.EnsureDefaultPools(ctx); createErr != nil {
		return &ExecutionError{VM: spec.Name, Op: "ensure storage pools", Err: createErr}
	}

	// Step 2: Check base image availability
	if spec.BaseImage != "" {
		log.Debug().Str("image", spec.BaseImage).Msg("checking base image")
		exists, err := e.sm.ImageExists(ctx, spec.BaseImage)
		if err != nil {
			createErr = &ExecutionError{VM: spec.Name, Op: "check base image", Err: err}
			return createErr
		}
		if !exists {
			createErr = &ExecutionError{
				VM:  spec.Name,
				Op:  "check base image",
				Err: fmt.Errorf("image %q not found in pool %s (import it with 'homestead image import')", spec.BaseImage, storage.DefaultImagesPool),
			}
			return createErr
		}
	}

	// Step 3: Check for leftover volumes from a previous run
	exists, err := e.sm.VolumeExists(ctx, pool, bootVol)
	if err != nil {
		createErr = &ExecutionError{VM: spec.Name, Op: "check boot volume", Err: err}
		return createErr
	}
	if exists {
		createErr = &ExecutionError{
			VM:  spec.Name,
			Op:  "check boot volume",
			Err: fmt.Errorf("volume %s already exists in pool %s", bootVol, pool),
		}
		return createErr
	}

	// Step 4: Create boot volume
	log.Info().Str("vm", spec.Name).Str("volume", bootVol).Int("size_gb", spec.DiskSizeGB).Msg("creating boot volume")
	volSpec := storage.VolumeSpec{
		Name:       bootVol,
		Type:       storage.VolumeTypeBoot,
		Format:     storage.VolumeFormatQCOW2,
		CapacityGB: uint64(spec.DiskSizeGB),
	}
	if spec.BaseImage != "" {
		volSpec.BackingVolume = spec.BaseImage
		volSpec.BackingPool = storage.DefaultImagesPool
	}
	if createErr = e.sm.CreateVolume(ctx, pool, volSpec); createErr != nil {
		return &ExecutionError{VM: spec.Name, Op: "create boot volume", Err: createErr}
	}
	bootCreated = true

	// Step 5: Generate and upload cloud-init seed
	log.Info().Str("vm", spec.Name).Msg("generating cloud-init seed")
	isoData, err := cloudinit.GenerateISO(spec)
	if err != nil {
		createErr = &ExecutionError{VM: spec.Name, Op: "generate cloud-init seed", Err: err}
		return createErr
	}

	if createErr = e.sm.CreateVolume(ctx, pool, storage.VolumeSpec{
		Name:   seedVol,
		Type:   storage.VolumeTypeCloudInit,
		Format: storage.VolumeFormatRaw,
	}); createErr != nil {
		return &ExecutionError{VM: spec.Name, Op: "create cloud-init volume", Err: createErr}
	}
	seedCreated = true

	if createErr = e.sm.WriteVolumeData(ctx, pool, seedVol, isoData); createErr != nil {
		return &ExecutionError{VM: spec.Name, Op: "upload cloud-init seed", Err: createErr}
	}

	// Step 6: Generate and define domain
	log.Info().Str("vm", spec.Name).Msg("defining domain")
	domainXML, err := homesteadlibvirt.GenerateDomainXML(spec)
	if err != nil {
		createErr = &ExecutionError{VM: spec.Name, Op: "generate domain XML", Err: err}
		return createErr
	}

	domain, err := e.lv.DomainDefineXML(domainXML)
	if err != nil {
		createErr = &ExecutionError{VM: spec.Name, Op: "define domain", Err: err}
		return createErr
	}
	domDefined = true

	// Step 7: Persist the resolved spec with the domain
	if createErr = metadata.Store(e.lv, domain, spec); createErr != nil {
		return &ExecutionError{VM: spec.Name, Op: "store spec metadata", Err: createErr}
	}

	// Step 8: Enable autostart
	if createErr = e.lv.DomainSetAutostart(domain, 1); createErr != nil {
		return &ExecutionError{VM: spec.Name, Op: "set autostart", Err: createErr}
	}

	log.Info().Str("vm", spec.Name).Msg("VM created")
	return nil
}

// cleanupCreate attempts to clean up all VM resources after a failed create.
//
// This is best-effort: it logs errors but continues trying to clean up
// as much as possible. It never returns an error.
func (e *Executor) cleanupCreate(ctx context.Context, vmName, pool string, domDefined, bootCreated, seedCreated bool) {
	log.Warn().Str("vm", vmName).Msg("cleaning up after failed VM creation")

	if domDefined {
		domain, err := e.lv.DomainLookupByName(vmName)
		if err != nil {
			log.Warn().Err(err).Msg("failed to look up domain for cleanup")
		} else if err := e.lv.DomainUndefineFlags(domain, libvirt.DomainUndefineNvram); err != nil {
			log.Warn().Err(err).Msg("failed to undefine domain during cleanup")
		}
	}

	if seedCreated {
		if err := e.sm.DeleteVolume(ctx, pool, naming.VolumeNameCloudInit(vmName)); err != nil {
			log.Warn().Err(err).Msg("failed to delete cloud-init volume during cleanup")
		}
	}

	if bootCreated {
		if err := e.sm.DeleteVolume(ctx, pool, naming.VolumeNameBoot(vmName)); err != nil {
			log.Warn().Err(err).Msg("failed to delete boot volume during cleanup")
		}
	}
}
