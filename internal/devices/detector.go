// Package devices lists local V4L2 capture devices so USB cameras can be
// added by a stable path instead of /dev/videoN.
package devices

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/smazurov/watchnode/internal/logging"
)

// DeviceInfo describes a video4linux node.
type DeviceInfo struct {
	DevicePath string `json:"device_path" example:"/dev/video0"`
	DeviceName string `json:"device_name" example:"HD Pro Webcam C920"`
	// DeviceID is the by-id or by-path symlink name, empty when udev created none.
	DeviceID string `json:"device_id,omitempty" example:"usb-046d_HD_Pro_Webcam_C920-video-index0"`
	// StablePath survives re-enumeration; prefer it as a camera source.
	StablePath string `json:"stable_path,omitempty" example:"/dev/v4l/by-id/usb-046d_HD_Pro_Webcam_C920-video-index0"`
	Index      int    `json:"index" example:"0" doc:"Node index within the physical device; 0 is the capture node"`
}

// Detector scans sysfs and the udev symlink directories.
type Detector struct {
	sysRoot string // /sys/class/video4linux
	devRoot string // /dev
	logger  *slog.Logger
}

// NewDetector returns a detector for the running system.
func NewDetector() *Detector {
	return &Detector{
		sysRoot: "/sys/class/video4linux",
		devRoot: "/dev",
		logger:  logging.GetLogger("devices"),
	}
}

// FindDevices returns the capture nodes sorted by path. Metadata nodes
// (index > 0) are skipped. A system without video4linux has no devices.
func (d *Detector) FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(d.sysRoot)
	if errors.Is(err, os.ErrNotExist) {
		return []DeviceInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.sysRoot, err)
	}

	links := d.stableLinks()
	devices := make([]DeviceInfo, 0, len(entries))
	for _, entry := range entries {
		node := entry.Name()
		if !strings.HasPrefix(node, "video") {
			continue
		}
		info := DeviceInfo{
			DevicePath: filepath.Join(d.devRoot, node),
			DeviceName: d.readAttr(node, "name"),
		}
		if idx, convErr := strconv.Atoi(d.readAttr(node, "index")); convErr == nil {
			info.Index = idx
		}
		if info.Index > 0 {
			continue
		}
		if link, ok := links[node]; ok {
			info.DeviceID = filepath.Base(link)
			info.StablePath = link
		}
		devices = append(devices, info)
	}

	slices.SortFunc(devices, func(a, b DeviceInfo) int { return strings.Compare(a.DevicePath, b.DevicePath) })
	d.logger.Debug("Scanned video devices", "count", len(devices))
	return devices, nil
}

func (d *Detector) readAttr(node, attr string) string {
	data, err := os.ReadFile(filepath.Join(d.sysRoot, node, attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// stableLinks maps a node name such as video0 to its udev symlink. by-id
// wins over by-path.
func (d *Detector) stableLinks() map[string]string {
	links := make(map[string]string)
	for _, dir := range []string{"v4l/by-path", "v4l/by-id"} {
		base := filepath.Join(d.devRoot, dir)
		entries, err := os.ReadDir(base)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			link := filepath.Join(base, entry.Name())
			target, err := os.Readlink(link)
			if err != nil {
				continue
			}
			links[filepath.Base(target)] = link
		}
	}
	return links
}
