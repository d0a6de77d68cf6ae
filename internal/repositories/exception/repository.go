// Package exception persists the human-review list a run produces.
package exception

import (
	"context"
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
	"id", "tenant_id", "run_id", "kind", "message", "record_id", "details",
	"created_at",
}

// Repository handles exception persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new exception repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts a run's exceptions in insertion batches.
func (r *Repository) CreateBatch(ctx context.Context, exceptions []*models.Exception) error {
	ctx, span := tracing.StartSpan(ctx, "exception.Repository.CreateBatch")
	defer span.End()

	if len(exceptions) == 0 {
		return nil
	}

	now := time.Now().UTC()
	const batchSize = 500
	for start := 0; start < len(exceptions); start += batchSize {
		end := min(start+batchSize, len(exceptions))

		sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
		sb.InsertInto("exceptions")
		sb.Cols(columns...)
		for _, exc := range exceptions[start:end] {
			if exc.ID == "" {
				exc.ID = uuid.New().String()
			}
			exc.CreatedAt = now
			sb.Values(exc.ID, exc.TenantID, exc.RunID, exc.Kind, exc.Message, exc.RecordID, exc.Details, exc.CreatedAt)
		}

		query, args := sb.Build()
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(exceptions)}).Error("Failed to create exceptions")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create exceptions")
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(exceptions)}).Debug("Created exceptions")
	return nil
}

// ListByRun returns one page of a run's exceptions, optionally narrowed to a
// kind, oldest first so review order matches production order.
func (r *Repository) ListByRun(ctx context.Context, tenantID, runID string, kind models.ExceptionKind, page, pageSize int) (*models.ExceptionListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "exception.Repository.ListByRun")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	where := func(sb *sqlbuilder.SelectBuilder) []string {
		conds := []string{
			sb.Equal("tenant_id", tenantID),
			sb.Equal("run_id", runID),
		}
		if kind != "" {
			conds = append(conds, sb.Equal("kind", kind))
		}
		return conds
	}

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("exceptions")
	countSb.Where(where(countSb)...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID}).Error("Failed to count exceptions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count exceptions")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("exceptions")
	sb.Where(where(sb)...)
	sb.OrderBy("created_at", "id")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var exceptions []models.Exception
	if err := r.db.SelectContext(ctx, &exceptions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID}).Error("Failed to list exceptions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list exceptions")
	}

	return &models.ExceptionListResponse{
		Items:      exceptions,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
