//go:build unix

package cache

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// readMapped maps path read-only. The returned release func unmaps it.
// Files that cannot be mapped are read into memory instead.
func readMapped(path string) ([]byte, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, func() {}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, func() {}, err
	}
	if info.Size() == 0 {
		return nil, func() {}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		logger.Debug("mmap failed, reading cache into memory", "path", path, "error", err)
		data, err := os.ReadFile(path)
		return data, func() {}, err
	}
	return data, func() { _ = unix.Munmap(data) }, nil
}

// writeMapped resizes f to len(payload) and writes it through a shared
// mapping.
func writeMapped(f *os.File, payload []byte) error {
	if len(payload) == 0 {
		return f.Truncate(0)
	}
	if err := f.Truncate(int64(len(payload))); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, len(payload), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	copy(data, payload)
	syncErr := unix.Msync(data, unix.MS_SYNC)
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	if syncErr != nil {
		return fmt.Errorf("msync: %w", syncErr)
	}
	return nil
}
