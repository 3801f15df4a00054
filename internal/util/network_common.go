package util

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// NetworkInfo contains information about a filesystem's network characteristics
type NetworkInfo struct {
	IsNetwork bool   // Whether the filesystem is network-mounted
	Protocol  string // Protocol (smb, nfs, cifs, etc.) or empty if local
	MountPath string // Mount point of the filesystem
}

// networkFsTypes are filesystem type names backed by another host
var networkFsTypes = []string{
	"nfs",
	"cifs",
	"smb",
	"afpfs",
	"webdav",
	"ncpfs",
	"fuse.sshfs",
	"fuse.rclone",
	"osxfuse",
}

// networkProtocol reports whether a filesystem type name is a network one
func networkProtocol(fsType string) (string, bool) {
	fsType = strings.ToLower(fsType)
	for _, t := range networkFsTypes {
		if strings.Contains(fsType, t) {
			return fsType, true
		}
	}
	return "", false
}

// DetectNetworkFilesystem checks if a path is on a network-mounted filesystem.
// A path that does not exist yet, such as a database about to be created,
// is judged by its nearest existing parent.
func DetectNetworkFilesystem(path string) (*NetworkInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	existing, err := existingAncestor(absPath)
	if err != nil {
		return nil, err
	}

	return detectPlatformNetwork(existing)
}

func existingAncestor(path string) (string, error) {
	for {
		_, err := os.Stat(path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
		parent := filepath.Dir(path)
		if parent == path {
			return "", fmt.Errorf("no existing parent for %s: %w", path, err)
		}
		path = parent
	}
}

// IsNetworkPath checks if a path is on a network filesystem (convenience function)
func IsNetworkPath(path string) bool {
	info, err := DetectNetworkFilesystem(path)
	if err != nil {
		return false
	}
	return info.IsNetwork
}
