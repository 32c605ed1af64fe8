package domain

import "time"

// Run status constants
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusFailed   = "failed"

	// RunStatusInterrupted marks a run whose process exited without finishing it
	RunStatusInterrupted = "interrupted"
)

// Product outcome constants
const (
	ProductStatusArchived      = "archived"
	ProductStatusSkipped       = "skipped"
	ProductStatusSummaryFailed = "summary_failed"
	ProductStatusFailed        = "failed"
)

// Run is one invocation of the archiver
type Run struct {
	ID         string
	OutputDir  string
	ProductIDs int
	Status     string
	LastError  string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// ProductRecord is the recorded outcome of one product within a run
type ProductRecord struct {
	RunID     string
	ProductID string
	Title     string
	Dir       string
	Status    string
	Sections  int
	Assets    int
	Fragments int
	Document  bool
	LastError string
	StartedAt time.Time
	UpdatedAt time.Time
}

// Fail marks the record as failed with the given error
func (r *ProductRecord) Fail(status string, err error) {
	r.Status = status
	if err != nil {
		r.LastError = err.Error()
	}
}
