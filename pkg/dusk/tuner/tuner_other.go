//go:build !linux && !darwin

package tuner

import "errors"

func detectMemory() (int64, int64, error) {
	return 0, 0, errors.New("memory detection not supported on this platform")
}
