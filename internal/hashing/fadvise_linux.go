//go:build linux

package hashing

import (
	"os"

	"golang.org/x/sys/unix"

	"mediacat/internal/constants"
)

// applySequentialHint tells the kernel the file will be read sequentially,
// which doubles the read-ahead window
func applySequentialHint(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}

// releaseCacheForLargeFile frees page cache after hashing large files so a
// bulk import does not evict the rest of the system's cache
func releaseCacheForLargeFile(f *os.File, size int64) {
	if size > constants.LargeFileCacheThreshold {
		_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED)
	}
}
