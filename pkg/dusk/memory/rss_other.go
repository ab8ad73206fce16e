//go:build !linux && !darwin

package memory

// ResidentSetSize is unavailable on this platform.
func ResidentSetSize() (int64, bool) {
	return 0, false
}
