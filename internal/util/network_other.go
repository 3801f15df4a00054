//go:build !linux && !darwin

package util

// detectPlatformNetwork treats every filesystem as local
func detectPlatformNetwork(path string) (*NetworkInfo, error) {
	return &NetworkInfo{}, nil
}
