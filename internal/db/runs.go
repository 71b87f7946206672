package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StartRun records the beginning of a conversion run, assigning it an ID
// when it has none.
func (db *DB) StartRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if !run.StartedAt.Valid {
		run.StartedAt = NewNullTime(time.Now().UTC())
	}

	_, err := db.NamedExec(`
		INSERT INTO runs (id, input_dir, output_dir, attachments_dir, extract, started_at)
		VALUES (:id, :input_dir, :output_dir, :attachments_dir, :extract, :started_at)
	`, run)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// FinishRun stores the final counters of a run
func (db *DB) FinishRun(id string, converted, failed, attachments int) error {
	res, err := db.Exec(`
		UPDATE runs SET converted = ?, failed = ?, attachments = ?, finished_at = ?
		WHERE id = ?
	`, converted, failed, attachments, NewNullTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to finish run: unknown run %q", id)
	}
	return nil
}

// GetRun retrieves a run by ID
func (db *DB) GetRun(id string) (*Run, error) {
	run := &Run{}
	err := db.Get(run, `SELECT * FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs, most recent first
func (db *DB) ListRuns(limit int) ([]*Run, error) {
	var runs []*Run
	if err := db.Select(&runs, `SELECT * FROM runs ORDER BY started_at DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}
