//go:build linux

package util

import (
	"strings"
	"testing"
)

func TestParseProcMounts(t *testing.T) {
	mounts, err := parseProcMounts()
	if err != nil {
		t.Fatalf("Failed to parse /proc/mounts: %v", err)
	}

	if _, found := mounts["/"]; !found {
		t.Error("Expected root filesystem to be mounted")
	}
}

const sampleMounts = `/dev/sda1 / ext4 rw,relatime 0 0
nas:/export/stats /mnt/nas nfs4 rw,vers=4.2 0 0
//files/share /mnt/share\040drive cifs rw 0 0
sshfs#user@host: /home/user/remote fuse.sshfs rw 0 0
broken line
`

func TestParseMounts(t *testing.T) {
	mounts, err := parseMounts(strings.NewReader(sampleMounts))
	if err != nil {
		t.Fatalf("parseMounts: %v", err)
	}

	if len(mounts) != 4 {
		t.Errorf("expected 4 mounts, got %d: %v", len(mounts), mounts)
	}
	if mounts["/mnt/share drive"] != "cifs" {
		t.Errorf("escaped mount point not decoded: %v", mounts)
	}
}

func TestMountFor(t *testing.T) {
	mounts, _ := parseMounts(strings.NewReader(sampleMounts))

	tests := []struct {
		path      string
		mount     string
		isNetwork bool
	}{
		{"/mnt/nas/catstats/catstats.db", "/mnt/nas", true},
		{"/mnt/nas", "/mnt/nas", true},
		{"/mnt/nasty/catstats.db", "/", false},
		{"/mnt/share drive/stats.db", "/mnt/share drive", true},
		{"/home/user/remote/db", "/home/user/remote", true},
		{"/var/lib/catstats.db", "/", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			mount, fsType := mountFor(mounts, tt.path)
			if mount != tt.mount {
				t.Errorf("mountFor(%q) = %q, want %q", tt.path, mount, tt.mount)
			}
			if _, ok := networkProtocol(fsType); ok != tt.isNetwork {
				t.Errorf("%q network = %v, want %v", tt.path, ok, tt.isNetwork)
			}
		})
	}
}
