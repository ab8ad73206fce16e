//go:build darwin

package tuner

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// detectMemory reads hw.memsize. macOS keeps most RAM in caches, so half
// of it is treated as available.
func detectMemory() (int64, int64, error) {
	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0, 0, fmt.Errorf("sysctl hw.memsize: %w", err)
	}
	total := int64(memsize)
	return total, total / 2, nil
}
