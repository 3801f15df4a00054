//go:build linux || darwin

package util

import "syscall"

// GetDiskUsage reports the size and free space of the filesystem holding path
func GetDiskUsage(path string) (DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return DiskUsage{}, err
	}
	bsize := uint64(stat.Bsize)
	return DiskUsage{
		Total:     uint64(stat.Blocks) * bsize,
		Free:      uint64(stat.Bfree) * bsize,
		Available: uint64(stat.Bavail) * bsize,
	}, nil
}
