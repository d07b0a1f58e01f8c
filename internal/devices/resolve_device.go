package devices

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveDevicePath converts a device ID from FindDevices to a path ffmpeg
// can open. Full /dev paths pass through.
func (d *Detector) ResolveDevicePath(deviceID string) (string, error) {
	if strings.HasPrefix(deviceID, "/dev/") {
		return deviceID, nil
	}
	if strings.ContainsRune(deviceID, '/') {
		return "", fmt.Errorf("invalid device ID: %s", deviceID)
	}

	for _, dir := range []string{"v4l/by-id", "v4l/by-path"} {
		devicePath := filepath.Join(d.devRoot, dir, deviceID)
		if _, err := os.Stat(devicePath); err == nil {
			return devicePath, nil
		}
	}

	return "", fmt.Errorf("no stable symlink found for device ID: %s", deviceID)
}
