//go:build unix

package walk

import (
	"io/fs"
	"syscall"

	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

// blockSize is the unit of st_blocks on every supported unix.
const blockSize = 512

// MetadataOf extracts raw metadata from info. Disk usage is the allocated
// block count times 512.
func MetadataOf(info fs.FileInfo) types.Metadata {
	meta := types.Metadata{
		Size:      info.Size(),
		ModTime:   info.ModTime().UnixNano(),
		DiskUsage: info.Size(),
		Nlink:     1,
	}

	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return meta
	}

	meta.DiskUsage = int64(st.Blocks) * blockSize
	meta.Nlink = uint64(st.Nlink)
	meta.Inode = uint64(st.Ino)
	meta.UID = st.Uid
	meta.GID = st.Gid
	return meta
}
