//go:build !unix

package cache

import (
	"errors"
	"os"
)

func readMapped(path string) ([]byte, func(), error) {
	data, err := os.ReadFile(path)
	return data, func() {}, err
}

func writeMapped(*os.File, []byte) error {
	return errors.New("memory mapping not supported")
}
