//go:build !windows

package filesystem

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/vertextoedge/subscription-archiver/internal/port"
)

// DiskUsage returns usage of the volume holding the output directory.
// Free counts only blocks available to unprivileged users.
func (m *Manager) DiskUsage() (*port.DiskUsage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(m.rootDir, &stat); err != nil {
		return nil, fmt.Errorf("failed to stat output volume: %w", err)
	}

	return &port.DiskUsage{
		Total: uint64(stat.Blocks) * uint64(stat.Bsize),
		Free:  uint64(stat.Bavail) * uint64(stat.Bsize),
	}, nil
}
