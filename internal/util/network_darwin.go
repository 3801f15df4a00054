//go:build darwin

package util

import (
	"fmt"
	"syscall"
)

// detectPlatformNetwork detects network filesystems on macOS from the
// statfs type name
func detectPlatformNetwork(path string) (*NetworkInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	info := &NetworkInfo{}

	if proto, ok := networkProtocol(int8ArrayToString(stat.Fstypename[:])); ok {
		info.IsNetwork = true
		info.Protocol = proto
		info.MountPath = int8ArrayToString(stat.Mntonname[:])
	}

	return info, nil
}

// int8ArrayToString converts a NUL-terminated C char array
func int8ArrayToString(arr []int8) string {
	b := make([]byte, 0, len(arr))
	for _, v := range arr {
		if v == 0 {
			break
		}
		b = append(b, byte(v))
	}
	return string(b)
}
