package filesystem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/vertextoedge/subscription-archiver/internal/port"
)

const (
	// SummaryFile holds the raw product summary
	SummaryFile = "data.json"

	// TempExt marks files that are still being written
	TempExt = ".writing"

	maxSlugLength = 50
	fallbackSlug  = "untitled"
)

// Manager lays out archived products under a root directory
type Manager struct {
	rootDir string
}

// Ensure Manager implements port.Archive
var _ port.Archive = (*Manager)(nil)

// NewManager creates a new archive manager, creating rootDir if needed
func NewManager(rootDir string) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &Manager{rootDir: rootDir}, nil
}

// RootDir returns the output root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// Slugify returns the lowercase, punctuation-free directory name for a title
func Slugify(title string) string {
	s := slug.Make(title)
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-")
	}
	if s == "" {
		return fallbackSlug
	}
	return s
}

// ProductDir returns <root>/<id>-<slug>
func (m *Manager) ProductDir(productID, title string) string {
	return filepath.Join(m.rootDir, productID+"-"+Slugify(title))
}

// ChildDir returns <parent>/<index>.<slug>
func (m *Manager) ChildDir(parent string, index int, title string) string {
	return filepath.Join(parent, strconv.Itoa(index)+"."+Slugify(title))
}

// Exists checks if a path exists
func (m *Manager) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDir creates dir and its parents
func (m *Manager) EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create dir %s: %w", dir, err)
	}
	return nil
}

// WriteSummary writes the summary as indented JSON to <dir>/data.json
func (m *Manager) WriteSummary(dir string, raw []byte) error {
	if err := m.EnsureDir(dir); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return fmt.Errorf("failed to format summary: %w", err)
	}
	return writeAtomic(filepath.Join(dir, SummaryFile), buf.Bytes())
}

// WriteDocument writes content to <dir>/<name> and returns the path
func (m *Manager) WriteDocument(dir, name, content string) (string, error) {
	if err := m.EnsureDir(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := writeAtomic(path, []byte(content)); err != nil {
		return "", err
	}
	return path, nil
}

// writeAtomic writes through a temp file renamed into place
func writeAtomic(path string, data []byte) error {
	tempPath := path + TempExt
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// CleanOldTempFiles removes temp files older than the specified duration.
// They are left behind when a run is killed mid-write.
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != TempExt {
			return nil
		}
		if info.ModTime().Before(threshold) {
			if removeErr := os.Remove(path); removeErr == nil {
				count++
			}
		}
		return nil
	})
	return count, err
}
