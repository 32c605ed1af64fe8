package port

import "time"

// Archive defines the on-disk layout of archived products
type Archive interface {
	// RootDir returns the output root directory
	RootDir() string

	// ProductDir returns the directory for a product: <id>-<slug>
	ProductDir(productID, title string) string

	// ChildDir returns <parent>/<index>.<slug>; index is 1-based
	ChildDir(parent string, index int, title string) string

	// Exists reports whether a path exists
	Exists(path string) bool

	// EnsureDir creates a directory and its parents
	EnsureDir(dir string) error

	// WriteSummary persists the raw summary as <dir>/data.json
	WriteSummary(dir string, raw []byte) error

	// WriteDocument persists an assembled document as <dir>/<name>
	// Returns the written path
	WriteDocument(dir, name, content string) (string, error)
}

// TempCleaner removes leftovers of interrupted writes
type TempCleaner interface {
	CleanOldTempFiles(olderThan time.Duration) (int, error)
}

// DiskUsage describes the volume holding the output directory
type DiskUsage struct {
	Total uint64
	Free  uint64
}

// DiskReporter reports free space on the output volume
type DiskReporter interface {
	DiskUsage() (*DiskUsage, error)
}
