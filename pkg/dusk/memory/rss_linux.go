//go:build linux

package memory

import (
	"bytes"
	"os"
	"strconv"
)

// ResidentSetSize returns the current resident set from /proc/self/statm.
func ResidentSetSize() (int64, bool) {
	data, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return 0, false
	}
	fields := bytes.Fields(data)
	if len(fields) < 2 {
		return 0, false
	}
	pages, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return 0, false
	}
	return pages * int64(os.Getpagesize()), true
}
