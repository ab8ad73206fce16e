//go:build darwin

package memory

import "golang.org/x/sys/unix"

// ResidentSetSize returns the peak resident set reported by getrusage.
// Darwin reports ru_maxrss in bytes.
func ResidentSetSize() (int64, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	return int64(ru.Maxrss), true
}
