package shmframe

// Package shmframe reads decoded video frames out of shared-memory regions
// owned by the video kernel. Access is strictly read-only: we map the region,
// copy the frame into private memory, and release the mapping before
// returning. Nothing in this package retains a handle to the region.

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported frame format")
	ErrSizeMismatch      = errors.New("shared memory region smaller than expected frame size")
)

// ExpectedSizeNV12 is the byte size of an NV12 frame: a full-resolution Y
// plane followed by a half-resolution interleaved UV plane.
func ExpectedSizeNV12(width, height int) int {
	return width*height + width*height/2
}

// ReadFrame copies one frame out of the shared-memory region at 'ref'.
// The returned buffer is owned by the caller and is independent of the
// region; the mapping and file descriptor are both released before return.
// The region is never opened with write intent.
func ReadFrame(ref string, width, height int, format string) ([]byte, error) {
	if format != "NV12" {
		return nil, fmt.Errorf("%w: %v (only NV12 supported)", ErrUnsupportedFormat, format)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %vx%v", width, height)
	}
	expected := ExpectedSizeNV12(width, height)

	fd, err := unix.Open(ref, unix.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("shared memory region does not exist: %v", ref)
		}
		if errors.Is(err, unix.EACCES) {
			return nil, fmt.Errorf("permission denied reading shared memory region: %v", ref)
		}
		return nil, fmt.Errorf("failed to open shared memory region %v: %w", ref, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("failed to stat shared memory region %v: %w", ref, err)
	}
	// The writer may round the region up to a page boundary, so a larger
	// region is fine. A smaller one cannot hold the declared frame.
	if st.Size < int64(expected) {
		return nil, fmt.Errorf("%w: region %v is %v bytes, frame needs %v", ErrSizeMismatch, ref, st.Size, expected)
	}

	mapping, err := unix.Mmap(fd, 0, expected, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to map shared memory region %v: %w", ref, err)
	}
	frame := make([]byte, expected)
	copy(frame, mapping)
	if err := unix.Munmap(mapping); err != nil {
		// The copy already succeeded, but a failed unmap means we could
		// still be holding the region, which violates the no-retention rule.
		return nil, fmt.Errorf("failed to unmap shared memory region %v: %w", ref, err)
	}
	return frame, nil
}
