package storage

import (
	"bytes"
	"fmt"
	"io"
)

// Volume formats recognized by DetectFormat.
const (
	FormatQCOW2 = "qcow2"
	FormatRaw   = "raw"
	FormatISO   = "iso"
)

var (
	// qcow2Magic is "QFI" followed by 0xfb at offset 0.
	qcow2Magic = []byte{0x51, 0x46, 0x49, 0xfb}

	// mbrSignature is the boot sector signature at offset 510. GPT disks
	// carry it too in their protective MBR.
	mbrSignature = []byte{0x55, 0xaa}
	mbrOffset    = int64(510)

	// iso9660Magic is the standard identifier of the primary volume
	// descriptor in sector 16.
	iso9660Magic  = []byte("CD001")
	iso9660Offset = int64(16*2048 + 1)
)

// DetectFormat sniffs the volume format of r from its magic bytes: qcow2,
// an ISO 9660 image or a bootable raw disk. The position of r is restored.
func DetectFormat(r io.ReadSeeker) (format string, err error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("failed to read position: %w", err)
	}
	defer func() {
		if _, serr := r.Seek(pos, io.SeekStart); serr != nil && err == nil {
			err = fmt.Errorf("failed to restore position: %w", serr)
		}
	}()

	ok, err := hasMagic(r, 0, qcow2Magic)
	if err != nil {
		return "", fmt.Errorf("source too small to be a valid image: %w", err)
	}
	if ok {
		return FormatQCOW2, nil
	}
	if ok, _ := hasMagic(r, iso9660Offset, iso9660Magic); ok {
		return FormatISO, nil
	}
	ok, err = hasMagic(r, mbrOffset, mbrSignature)
	if err != nil {
		return "", fmt.Errorf("source too small for a boot sector: %w", err)
	}
	if ok {
		return FormatRaw, nil
	}
	return "", fmt.Errorf("unsupported image: not qcow2 or iso and missing boot sector signature")
}

func hasMagic(r io.ReadSeeker, offset int64, magic []byte) (bool, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return false, err
	}
	buf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, buf); err != nil {
		return false, err
	}
	return bytes.Equal(buf, magic), nil
}
