package archiver

import "github.com/vertextoedge/subscription-archiver/internal/port"

// ResumeGuard decides whether a product was handled by an earlier run.
// The product directory's existence is the only marker; a partially
// populated directory counts as complete.
type ResumeGuard struct {
	archive port.Archive
}

// NewResumeGuard creates a guard over the archive layout
func NewResumeGuard(archive port.Archive) *ResumeGuard {
	return &ResumeGuard{archive: archive}
}

// ShouldSkip reports whether the product directory already exists
func (g *ResumeGuard) ShouldSkip(productID, title string) bool {
	return g.archive.Exists(g.archive.ProductDir(productID, title))
}
