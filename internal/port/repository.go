package port

import "github.com/vertextoedge/subscription-archiver/internal/domain"

// Ledger records run and product outcomes.
// It is observational only and never consulted to decide what to archive.
type Ledger interface {
	StartRun(run *domain.Run) error
	FinishRun(runID string, status string, lastErr error) error
	RecordProduct(record *domain.ProductRecord) error
	ListRuns(limit int) ([]*domain.Run, error)
	ListProducts(runID string) ([]*domain.ProductRecord, error)
}

// ProgressReporter receives one increment per finished product id
type ProgressReporter interface {
	Add(n int) error
}

// RunSweeper closes runs left open by a process that exited early
type RunSweeper interface {
	AbandonRuns() (int, error)
}
