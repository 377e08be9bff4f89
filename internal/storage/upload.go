package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/virtdriver/api/v1alpha1"
	"github.com/jbweber/virtdriver/internal/retry"
)

// UploadError reports a failed upload with the range that was attempted,
// so callers can decide whether to resume.
type UploadError struct {
	Key    string
	Offset uint64
	Length uint64
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload to volume %s failed (offset %d, length %d): %v", e.Key, e.Offset, e.Length, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Is reports an upload that gave up as fatal, whatever the reason its
// retries stopped.
func (e *UploadError) Is(target error) bool {
	return target == retry.ErrFatal
}

// Upload streams the whole of src into the volume from offset 0. The length
// sent is the full size of src regardless of its current position, and the
// position of src is restored before returning.
func (m *Manager) Upload(ctx context.Context, vol *v1alpha1.Volume, src io.ReadSeeker) (err error) {
	sv, err := m.lookup(ctx, vol)
	if err != nil {
		return err
	}

	pos, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("failed to read source position: %w", err)
	}
	defer func() {
		if _, serr := src.Seek(pos, io.SeekStart); serr != nil && err == nil {
			err = fmt.Errorf("failed to restore source position: %w", serr)
		}
	}()

	size, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to determine source size: %w", err)
	}
	length := uint64(size)

	log := m.log.WithFields(logrus.Fields{"volume": vol.Name, "bytes": length})
	log.Info("Uploading volume data...")

	err = m.upload.Do(ctx, "volume.upload", func(context.Context) error {
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind source: %w", err)
		}
		return m.client.StorageVolUpload(sv, src, 0, length)
	})
	if err != nil {
		return &UploadError{Key: vol.Status.Key, Offset: 0, Length: length, Err: err}
	}
	log.Info("Upload complete")
	return nil
}
