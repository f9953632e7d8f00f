// Package camera handles capture-device discovery, classification, and live
// stream acquisition.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Kind string

const (
	KindVideo Kind = "video"
	KindOther Kind = "other"
)

type PriorityClass string

const (
	ClassExternal PriorityClass = "external"
	ClassInternal PriorityClass = "internal"
)

// Device is one platform-exposed capture device snapshot. Identity is the ID;
// the label may be empty when the platform withholds it pre-grant.
type Device struct {
	ID    string
	Kind  Kind
	Label string
	Class PriorityClass
}

// ErrNoDevices indicates enumeration finished with no usable capture device.
var ErrNoDevices = errors.New("no capture devices found")

// PermissionError carries the platform-reported reason for a refused capture
// grant.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string {
	return "capture permission denied: " + e.Reason
}

// externalProducts are lowercase product names of virtual/phone cameras that
// forward a better sensor than the built-in one.
var externalProducts = []string{
	"droidcam",
	"obs virtual",
	"iriun",
	"ivcam",
	"epoccam",
	"camo",
}

// builtinMarker identifies built-in laptop hardware in device labels.
const builtinMarker = "integrated"

// Overridable in tests; production values point at the v4l2 registry.
var (
	sysVideoDir = "/sys/class/video4linux"
	devRoot     = "/dev"
)

// Enumerate lists video capture devices in registry order. A throwaway open
// of the first device node runs before enumeration so permission problems
// surface immediately; the handle is released right away.
func Enumerate(_ context.Context) ([]Device, error) {
	entries, err := os.ReadDir(sysVideoDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", sysVideoDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "video") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, nil
	}

	if err := probeGrant(filepath.Join(devRoot, names[0])); err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(names))
	for _, name := range names {
		label := readLabel(filepath.Join(sysVideoDir, name, "name"))
		devices = append(devices, Device{
			ID:    filepath.Join(devRoot, name),
			Kind:  KindVideo,
			Label: label,
			Class: Classify(label),
		})
	}
	return devices, nil
}

// probeGrant opens and immediately releases one device node so that a denied
// grant is reported before any labels are read.
func probeGrant(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return &PermissionError{Reason: err.Error()}
		}
		// Missing node or busy device is not a permission problem; labels
		// are still readable from the registry.
		return nil
	}
	_ = f.Close()
	return nil
}

func readLabel(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(content))
}

// Classify assigns the acquisition priority class for one device label.
// External wins for known virtual/phone products and for anything that does
// not look like built-in hardware.
func Classify(label string) PriorityClass {
	lower := strings.ToLower(label)
	for _, product := range externalProducts {
		if strings.Contains(lower, product) {
			return ClassExternal
		}
	}
	if strings.Contains(lower, builtinMarker) {
		return ClassInternal
	}
	return ClassExternal
}

// BuildCandidateList orders device ids for acquisition: external-class ids
// first in enumeration order, de-duplicated; internal ids only when no
// external device exists.
func BuildCandidateList(devices []Device) ([]string, error) {
	seen := make(map[string]struct{}, len(devices))
	external := make([]string, 0, len(devices))
	internal := make([]string, 0, len(devices))

	for _, device := range devices {
		if device.Kind != KindVideo {
			continue
		}
		if _, dup := seen[device.ID]; dup {
			continue
		}
		seen[device.ID] = struct{}{}
		if device.Class == ClassExternal {
			external = append(external, device.ID)
		} else {
			internal = append(internal, device.ID)
		}
	}

	if len(external) > 0 {
		return external, nil
	}
	if len(internal) > 0 {
		return internal, nil
	}
	return nil, ErrNoDevices
}
