//go:build linux

package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Linux VFS magic numbers of network filesystems
var networkMagic = map[uint32]string{
	0x6969:     "nfs",   // NFS_SUPER_MAGIC
	0xff534d42: "cifs",  // CIFS_MAGIC_NUMBER
	0x517b:     "smb",   // SMB_SUPER_MAGIC
	0x01021994: "smbfs", // SMBFS_MAGIC (old)
	0x564c:     "ncp",   // NCP_SUPER_MAGIC
	0xfe534d42: "smb2",  // SMB2_MAGIC_NUMBER
}

// detectPlatformNetwork detects network filesystems on Linux
func detectPlatformNetwork(path string) (*NetworkInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	info := &NetworkInfo{}

	if proto, found := networkMagic[uint32(stat.Type)]; found {
		info.IsNetwork = true
		info.Protocol = proto
	}

	// The mount table adds the mount point and catches FUSE mounts
	mounts, err := parseProcMounts()
	if err != nil {
		return info, nil
	}

	mountPoint, fsType := mountFor(mounts, path)
	if proto, ok := networkProtocol(fsType); ok {
		info.IsNetwork = true
		info.Protocol = proto
	}
	if info.IsNetwork {
		info.MountPath = mountPoint
	}

	return info, nil
}

// mountFor returns the longest mount point containing path and its type
func mountFor(mounts map[string]string, path string) (string, string) {
	path = filepath.Clean(path)
	best := ""
	for mountPoint := range mounts {
		if !withinMount(path, mountPoint) {
			continue
		}
		if len(mountPoint) > len(best) {
			best = mountPoint
		}
	}
	if best == "" {
		return "", ""
	}
	return best, mounts[best]
}

func withinMount(path, mountPoint string) bool {
	if mountPoint == "/" || path == mountPoint {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(mountPoint, "/")+"/")
}

// parseProcMounts parses /proc/mounts into mount point -> filesystem type
func parseProcMounts() (map[string]string, error) {
	file, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseMounts(file)
}

// parseMounts reads fstab-format lines: device mountpoint fstype options ...
func parseMounts(r io.Reader) (map[string]string, error) {
	mounts := make(map[string]string)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		// Spaces in mount points are octal-escaped
		mountPoint := strings.ReplaceAll(fields[1], `\040`, " ")
		mounts[mountPoint] = fields[2]
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return mounts, nil
}
