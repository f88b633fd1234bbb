package workflows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"inspection-chat/models"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrReportNotFound is returned when no archived report has the requested id
var ErrReportNotFound = errors.New("report not found")

const schema = `CREATE TABLE IF NOT EXISTS reports (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL,
	categories TEXT[] NOT NULL DEFAULT '{}',
	body TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// ReportWorkflows contains DBOS workflows for the report archive
type ReportWorkflows struct {
	db      *sql.DB
	dbosCtx dbos.DBOSContext
}

// NewReportWorkflows creates a new ReportWorkflows instance
func NewReportWorkflows(db *sql.DB) *ReportWorkflows {
	return &ReportWorkflows{db: db}
}

// Register registers the workflows with DBOS. It must be called before dbos.Launch
func (w *ReportWorkflows) Register(dbosCtx dbos.DBOSContext) {
	w.dbosCtx = dbosCtx
	dbos.RegisterWorkflow(dbosCtx, w.SaveReportWorkflow)
	dbos.RegisterWorkflow(dbosCtx, w.DeleteReportWorkflow)
}

// EnsureSchema creates the reports table if it does not exist
func (w *ReportWorkflows) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}
	return nil
}

// SaveReportWorkflow durably stores a generated report
func (w *ReportWorkflows) SaveReportWorkflow(ctx dbos.DBOSContext, report models.ArchivedReport) (models.ArchivedReport, error) {
	return dbos.RunAsStep(ctx, func(stepCtx context.Context) (models.ArchivedReport, error) {
		if report.ID == uuid.Nil {
			report.ID = uuid.Must(uuid.NewV7())
		}
		if report.CreatedAt.IsZero() {
			report.CreatedAt = time.Now()
		}
		if report.Categories == nil {
			report.Categories = []string{}
		}

		_, err := w.db.ExecContext(stepCtx,
			`INSERT INTO reports (id, session_id, categories, body, created_at) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO NOTHING`,
			report.ID, report.SessionID, pq.Array(report.Categories), report.Body, report.CreatedAt)
		if err != nil {
			return models.ArchivedReport{}, err
		}
		return report, nil
	})
}

// DeleteReportWorkflow deletes an archived report durably
func (w *ReportWorkflows) DeleteReportWorkflow(ctx dbos.DBOSContext, id uuid.UUID) (bool, error) {
	return dbos.RunAsStep(ctx, func(stepCtx context.Context) (bool, error) {
		res, err := w.db.ExecContext(stepCtx, "DELETE FROM reports WHERE id = $1", id)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n > 0, err
	})
}

// ArchiveReport runs SaveReportWorkflow and waits for it until ctx is done.
// A workflow still running at the deadline keeps running and is recovered by DBOS
func (w *ReportWorkflows) ArchiveReport(ctx context.Context, report models.ArchivedReport) error {
	handle, err := dbos.RunWorkflow(w.dbosCtx, w.SaveReportWorkflow, report)
	if err != nil {
		return fmt.Errorf("failed to start SaveReport workflow: %w", err)
	}
	if _, err := awaitResult(ctx, func() (models.ArchivedReport, error) { return handle.GetResult() }); err != nil {
		return fmt.Errorf("SaveReport workflow failed: %w", err)
	}
	return nil
}

// DeleteReport runs DeleteReportWorkflow. It reports whether a row was removed
func (w *ReportWorkflows) DeleteReport(ctx context.Context, id uuid.UUID) (bool, error) {
	handle, err := dbos.RunWorkflow(w.dbosCtx, w.DeleteReportWorkflow, id)
	if err != nil {
		return false, fmt.Errorf("failed to start DeleteReport workflow: %w", err)
	}
	deleted, err := awaitResult(ctx, func() (bool, error) { return handle.GetResult() })
	if err != nil {
		return false, fmt.Errorf("DeleteReport workflow failed: %w", err)
	}
	return deleted, nil
}

type result[T any] struct {
	value T
	err   error
}

// awaitResult waits for get or for ctx, whichever finishes first
func awaitResult[T any](ctx context.Context, get func() (T, error)) (T, error) {
	done := make(chan result[T], 1)
	go func() {
		v, err := get()
		done <- result[T]{v, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// ListReports returns archived reports, newest first
func (w *ReportWorkflows) ListReports(ctx context.Context) ([]models.ArchivedReport, error) {
	rows, err := w.db.QueryContext(ctx,
		"SELECT id, session_id, categories, body, created_at FROM reports ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := []models.ArchivedReport{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// GetReport retrieves an archived report by ID
func (w *ReportWorkflows) GetReport(ctx context.Context, id uuid.UUID) (models.ArchivedReport, error) {
	row := w.db.QueryRowContext(ctx,
		"SELECT id, session_id, categories, body, created_at FROM reports WHERE id = $1", id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ArchivedReport{}, ErrReportNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (models.ArchivedReport, error) {
	var r models.ArchivedReport
	if err := row.Scan(&r.ID, &r.SessionID, pq.Array(&r.Categories), &r.Body, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan report: %w", err)
	}
	return r, nil
}
