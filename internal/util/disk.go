package util

import "errors"

// ErrUnsupported is returned on platforms with no implementation
var ErrUnsupported = errors.New("not supported on this platform")

// DiskUsage describes the filesystem holding a path, in bytes
type DiskUsage struct {
	Total     uint64
	Free      uint64
	Available uint64 // free to unprivileged users
}

// UsedPercent returns the used share of the filesystem
func (d DiskUsage) UsedPercent() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Total-d.Free) / float64(d.Total) * 100
}
