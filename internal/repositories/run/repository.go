// Package run persists reconciliation run rows: lifecycle transitions, the
// input fingerprint idempotence lookup and the single-active-run guard.
package run

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var columns = []string{
	"id", "tenant_id", "status", "input_fingerprint", "stats", "error",
	"started_at", "completed_at", "created_at", "updated_at",
}

// Repository handles reconcile run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a running row. The partial unique index on (tenant_id)
// WHERE status = 'running' enforces one active run per tenant; a violation
// surfaces as 409.
func (r *Repository) Create(ctx context.Context, tenantID, inputFingerprint string) (*models.ReconcileRun, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	run := &models.ReconcileRun{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		Status:           models.RunStatusRunning,
		InputFingerprint: inputFingerprint,
		StartedAt:        now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("reconcile_runs")
	sb.Cols("id", "tenant_id", "status", "input_fingerprint", "stats", "started_at", "created_at", "updated_at")
	sb.Values(run.ID, run.TenantID, run.Status, run.InputFingerprint, run.Stats, run.StartedAt, run.CreatedAt, run.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "a run is already active for this tenant")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to create run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create run")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"run_id": run.ID, "tenant_id": tenantID}).Info("Created run")
	return run, nil
}

// Complete transitions a run to completed with its final stats.
func (r *Repository) Complete(ctx context.Context, tenantID, id string, stats models.RunStats) (*models.ReconcileRun, error) {
	return r.finish(ctx, tenantID, id, models.RunStatusCompleted, stats, nil)
}

// Fail transitions a run to failed, keeping whatever stats were gathered.
func (r *Repository) Fail(ctx context.Context, tenantID, id string, stats models.RunStats, runErr error) (*models.ReconcileRun, error) {
	message := runErr.Error()
	return r.finish(ctx, tenantID, id, models.RunStatusFailed, stats, &message)
}

func (r *Repository) finish(ctx context.Context, tenantID, id string, status models.RunStatus, stats models.RunStats, message *string) (*models.ReconcileRun, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.finish")
	defer span.End()

	now := time.Now().UTC()
	query := `
		UPDATE reconcile_runs
		SET status = $1, stats = $2, error = $3, completed_at = $4, updated_at = $4
		WHERE id = $5 AND tenant_id = $6 AND status = 'running'
		RETURNING id, tenant_id, status, input_fingerprint, stats, error,
			started_at, completed_at, created_at, updated_at
	`

	var run models.ReconcileRun
	err := r.db.GetContext(ctx, &run, query, status, database.JSONB[models.RunStats]{Data: stats}, message, now, id, tenantID)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("run %s is not active", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": id, "status": status}).Error("Failed to finish run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish run")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"run_id": id, "status": status}).Info("Finished run")
	return &run, nil
}

// Get retrieves a run by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.ReconcileRun, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("reconcile_runs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var run models.ReconcileRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": id}).Error("Failed to get run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get run")
	}

	return &run, nil
}

// LatestCompleted returns the most recent completed run, or nil when the
// tenant has none. The caller compares its input fingerprint for the
// idempotence short-circuit.
func (r *Repository) LatestCompleted(ctx context.Context, tenantID string) (*models.ReconcileRun, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.LatestCompleted")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("reconcile_runs")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.RunStatusCompleted),
	)
	sb.OrderBy("completed_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var run models.ReconcileRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to get latest completed run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get latest run")
	}

	return &run, nil
}

// List returns the tenant's runs, newest first.
func (r *Repository) List(ctx context.Context, tenantID string, page, pageSize int) (*models.RunListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("reconcile_runs")
	countSb.Where(countSb.Equal("tenant_id", tenantID))

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to count runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count runs")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("reconcile_runs")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("started_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var runs []models.ReconcileRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}

	return &models.RunListResponse{
		Items:      runs,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
