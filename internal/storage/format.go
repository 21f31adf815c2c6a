package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// "QFI\xfb", the qcow2 header magic at offset 0.
// https://www.qemu.org/docs/master/interop/qcow2.html
var qcow2Magic = []byte{0x51, 0x46, 0x49, 0xfb}

// Boot sector signature at offset 510. Present on MBR disks and on GPT
// disks via the protective MBR, so it covers both partitioning schemes.
var bootSignature = []byte{0x55, 0xaa}

const bootSignatureOffset = 510

// ErrUnknownImageFormat means the file is neither qcow2 nor a bootable
// raw disk.
var ErrUnknownImageFormat = errors.New("not qcow2 and missing boot sector signature")

// DetectImageFormat sniffs a disk image's format from its magic bytes.
// Only bootable OS images pass: qcow2 by header magic, raw by the boot
// sector signature. Arbitrary data files are rejected.
func DetectImageFormat(filePath string) (VolumeFormat, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header := make([]byte, len(qcow2Magic))
	if _, err := io.ReadFull(f, header); err != nil {
		return "", fmt.Errorf("file too small to be a disk image: %w", err)
	}
	if bytes.Equal(header, qcow2Magic) {
		return VolumeFormatQCOW2, nil
	}

	sig := make([]byte, len(bootSignature))
	if _, err := f.ReadAt(sig, bootSignatureOffset); err != nil {
		return "", fmt.Errorf("file too small for a boot sector: %w", err)
	}
	if bytes.Equal(sig, bootSignature) {
		return VolumeFormatRaw, nil
	}

	return "", ErrUnknownImageFormat
}
