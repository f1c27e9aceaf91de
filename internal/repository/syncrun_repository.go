package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
	"github.com/ndewijer/brokerage-sync/internal/database"
	"github.com/ndewijer/brokerage-sync/internal/model"
)

// SyncRunRepository provides data access for the sync_runs table. Rows are
// created once and updated once; they are never deleted.
type SyncRunRepository struct {
	base
}

// NewSyncRunRepository creates a new SyncRunRepository with the provided database connection.
func NewSyncRunRepository(db *database.DB) *SyncRunRepository {
	return &SyncRunRepository{base: base{db: db}}
}

// Create inserts a new run in the running state. It is not bound to a write
// unit so the row is visible as soon as it returns.
func (r *SyncRunRepository) Create(ctx context.Context, startedAt time.Time) (model.SyncRun, error) {
	run := model.SyncRun{
		ID:        uuid.New().String(),
		StartedAt: startedAt.UTC(),
		Status:    model.SyncRunning,
	}

	_, err := r.exec(ctx, `
		INSERT INTO sync_runs (id, started_at, status)
		VALUES (?, ?, ?)
	`, run.ID, r.timeArg(run.StartedAt), string(run.Status))
	if err != nil {
		return model.SyncRun{}, fmt.Errorf("failed to create sync run: %w", err)
	}
	return run, nil
}

// Finish records the terminal status, counts, error text and completion
// time. Only a run still in the running state can be finished; otherwise
// ErrSyncRunNotFound is returned.
func (r *SyncRunRepository) Finish(ctx context.Context, run model.SyncRun) error {
	if !run.Status.Terminal() {
		return fmt.Errorf("cannot finish sync run %s with status %q", run.ID, run.Status)
	}

	completedAt := time.Now().UTC()
	if run.CompletedAt != nil {
		completedAt = *run.CompletedAt
	}

	var errText any
	if run.Error != nil {
		errText = model.TruncateRunError(*run.Error)
	}

	result, err := r.exec(ctx, `
		UPDATE sync_runs SET
			status = ?,
			accounts_count = ?,
			positions_count = ?,
			snapshots_count = ?,
			activities_count = ?,
			dividends_count = ?,
			error_message = ?,
			completed_at = ?
		WHERE id = ? AND status = ?
	`,
		string(run.Status),
		run.Counts.Accounts,
		run.Counts.Positions,
		run.Counts.Snapshots,
		run.Counts.Activities,
		run.Counts.Dividends,
		errText,
		r.timeArg(completedAt),
		run.ID,
		string(model.SyncRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.ErrSyncRunNotFound
	}
	return nil
}

const selectSyncRunColumns = `
	SELECT id, started_at, status, accounts_count, positions_count, snapshots_count,
		activities_count, dividends_count, error_message, completed_at
	FROM sync_runs
`

// Get returns one run by id.
func (r *SyncRunRepository) Get(ctx context.Context, id string) (model.SyncRun, error) {
	run, err := scanSyncRun(r.queryRow(ctx, selectSyncRunColumns+` WHERE id = ?`, id))
	if isNoRows(err) {
		return model.SyncRun{}, apperrors.ErrSyncRunNotFound
	}
	return run, err
}

// Latest returns the most recently started run.
func (r *SyncRunRepository) Latest(ctx context.Context) (model.SyncRun, error) {
	run, err := scanSyncRun(r.queryRow(ctx, selectSyncRunColumns+` ORDER BY started_at DESC, id DESC LIMIT 1`))
	if isNoRows(err) {
		return model.SyncRun{}, apperrors.ErrSyncRunNotFound
	}
	return run, err
}

// History returns up to limit runs, newest first.
func (r *SyncRunRepository) History(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		return nil, apperrors.ErrInvalidLimit
	}

	rows, err := r.query(ctx, selectSyncRunColumns+` ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	runs := []model.SyncRun{}
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}
	return runs, nil
}

func scanSyncRun(row rowScanner) (model.SyncRun, error) {
	var run model.SyncRun
	var status string
	var errText sql.NullString
	var startedAt, completedAt timeValue

	err := row.Scan(
		&run.ID,
		&startedAt,
		&status,
		&run.Counts.Accounts,
		&run.Counts.Positions,
		&run.Counts.Snapshots,
		&run.Counts.Activities,
		&run.Counts.Dividends,
		&errText,
		&completedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return model.SyncRun{}, err
		}
		return model.SyncRun{}, fmt.Errorf("failed to scan sync run: %w", err)
	}

	run.StartedAt = startedAt.Time
	run.Status = model.SyncStatus(status)
	run.Error = stringPtr(errText)
	run.CompletedAt = completedAt.ptr()
	return run, nil
}
