//go:build linux

package tuner

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// detectMemory reads total and free+buffer memory from sysinfo(2).
func detectMemory() (int64, int64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, fmt.Errorf("sysinfo: %w", err)
	}
	unit := int64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total := int64(info.Totalram) * unit
	avail := (int64(info.Freeram) + int64(info.Bufferram)) * unit
	return total, avail, nil
}
