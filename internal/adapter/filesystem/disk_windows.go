//go:build windows

package filesystem

import (
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/vertextoedge/subscription-archiver/internal/port"
)

// DiskUsage returns usage of the volume holding the output directory
func (m *Manager) DiskUsage() (*port.DiskUsage, error) {
	dir, err := windows.UTF16PtrFromString(m.rootDir)
	if err != nil {
		return nil, err
	}

	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &available, &total, &free); err != nil {
		return nil, fmt.Errorf("failed to stat output volume: %w", err)
	}

	return &port.DiskUsage{
		Total: total,
		Free:  available,
	}, nil
}
