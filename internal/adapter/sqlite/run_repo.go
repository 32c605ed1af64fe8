package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vertextoedge/subscription-archiver/internal/domain"
)

// StartRun inserts a new run; an empty ID is replaced with a fresh UUID
func (s *Store) StartRun(run *domain.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}

	query := `
		INSERT INTO runs (id, output_dir, product_ids, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, run.ID, run.OutputDir, run.ProductIDs, run.Status, run.StartedAt); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun sets the final status of a run
func (s *Store) FinishRun(runID string, status string, lastErr error) error {
	var errText sql.NullString
	if lastErr != nil {
		errText = sql.NullString{String: lastErr.Error(), Valid: true}
	}

	query := `UPDATE runs SET status = ?, last_error = ?, finished_at = ? WHERE id = ?`
	result, err := s.db.Exec(query, status, errText, time.Now(), runID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return nil
}

// AbandonRuns marks every run still in the running state as interrupted.
// Returns the number of runs updated.
func (s *Store) AbandonRuns() (int, error) {
	query := `UPDATE runs SET status = ?, finished_at = ? WHERE status = ?`
	result, err := s.db.Exec(query, domain.RunStatusInterrupted, time.Now(), domain.RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to abandon runs: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// RecordProduct inserts or replaces the outcome of a product within a run
func (s *Store) RecordProduct(record *domain.ProductRecord) error {
	now := time.Now()
	if record.StartedAt.IsZero() {
		record.StartedAt = now
	}
	record.UpdatedAt = now

	var errText sql.NullString
	if record.LastError != "" {
		errText = sql.NullString{String: record.LastError, Valid: true}
	}

	query := `
		INSERT INTO product_records
			(run_id, product_id, title, dir, status, sections, assets, fragments, document, last_error, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, product_id) DO UPDATE SET
			title = excluded.title,
			dir = excluded.dir,
			status = excluded.status,
			sections = excluded.sections,
			assets = excluded.assets,
			fragments = excluded.fragments,
			document = excluded.document,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`
	_, err := s.db.Exec(query,
		record.RunID, record.ProductID, record.Title, record.Dir, record.Status,
		record.Sections, record.Assets, record.Fragments, record.Document,
		errText, record.StartedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record product %s: %w", record.ProductID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first
func (s *Store) ListRuns(limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, output_dir, product_ids, status, last_error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run := &domain.Run{}
		var lastError sql.NullString
		var finishedAt sql.NullTime

		if err := rows.Scan(&run.ID, &run.OutputDir, &run.ProductIDs, &run.Status,
			&lastError, &run.StartedAt, &finishedAt); err != nil {
			return nil, err
		}
		if lastError.Valid {
			run.LastError = lastError.String
		}
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListProducts returns the product records of a run in recording order
func (s *Store) ListProducts(runID string) ([]*domain.ProductRecord, error) {
	query := `
		SELECT run_id, product_id, title, dir, status, sections, assets, fragments, document,
			last_error, started_at, updated_at
		FROM product_records
		WHERE run_id = ?
		ORDER BY id
	`
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.ProductRecord
	for rows.Next() {
		r := &domain.ProductRecord{}
		var lastError sql.NullString

		if err := rows.Scan(&r.RunID, &r.ProductID, &r.Title, &r.Dir, &r.Status,
			&r.Sections, &r.Assets, &r.Fragments, &r.Document,
			&lastError, &r.StartedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if lastError.Valid {
			r.LastError = lastError.String
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
