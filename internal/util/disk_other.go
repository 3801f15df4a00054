//go:build !linux && !darwin

package util

// GetDiskUsage is not implemented on this platform
func GetDiskUsage(path string) (DiskUsage, error) {
	return DiskUsage{}, ErrUnsupported
}
