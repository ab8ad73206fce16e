//go:build !unix

package walk

import (
	"io/fs"

	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

// MetadataOf extracts raw metadata from info. Without block counts the
// logical size stands in for disk usage.
func MetadataOf(info fs.FileInfo) types.Metadata {
	return types.Metadata{
		Size:      info.Size(),
		ModTime:   info.ModTime().UnixNano(),
		DiskUsage: info.Size(),
		Nlink:     1,
	}
}
