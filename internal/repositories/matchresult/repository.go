// Package matchresult persists the scored match table a run produces.
// Rows are append-only and scoped to their run.
package matchresult

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
	"id", "tenant_id", "run_id", "imported_deal_id", "curated_deal_id",
	"name_score", "exact_match", "date_diff_days", "size_match", "type_match",
	"category_compatible", "confidence", "pass", "created_at",
}

// Repository handles match result persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match result repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts a run's match rows in insertion batches.
func (r *Repository) CreateBatch(ctx context.Context, results []*models.MatchResult) error {
	ctx, span := tracing.StartSpan(ctx, "matchresult.Repository.CreateBatch")
	defer span.End()

	if len(results) == 0 {
		return nil
	}

	now := time.Now().UTC()
	const batchSize = 500
	for start := 0; start < len(results); start += batchSize {
		end := min(start+batchSize, len(results))

		sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
		sb.InsertInto("match_results")
		sb.Cols(columns...)
		for _, result := range results[start:end] {
			if result.ID == "" {
				result.ID = uuid.New().String()
			}
			result.CreatedAt = now
			sb.Values(result.ID, result.TenantID, result.RunID, result.ImportedDealID, result.CuratedDealID,
				result.NameScore, result.ExactMatch, result.DateDiffDays, result.SizeMatch, result.TypeMatch,
				result.CategoryCompatible, result.Confidence, result.Pass, result.CreatedAt)
		}

		query, args := sb.Build()
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(results)}).Error("Failed to create match results")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create match results")
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(results)}).Debug("Created match results")
	return nil
}

// ListByRun returns one page of a run's matches, strongest first. Pass and
// minimum confidence narrow the listing when set.
func (r *Repository) ListByRun(ctx context.Context, tenantID, runID string, pass int, minConfidence int, page, pageSize int) (*models.MatchResultListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "matchresult.Repository.ListByRun")
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
	countSb.From("match_results")
	countSb.Where(filters(countSb, tenantID, runID, pass, minConfidence)...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID}).Error("Failed to count match results")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count match results")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("match_results")
	sb.Where(filters(sb, tenantID, runID, pass, minConfidence)...)
	sb.OrderBy("confidence DESC", "name_score DESC", "imported_deal_id")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var results []models.MatchResult
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID}).Error("Failed to list match results")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match results")
	}

	return &models.MatchResultListResponse{
		Items:      results,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func filters(sb *sqlbuilder.SelectBuilder, tenantID, runID string, pass, minConfidence int) []string {
	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.Equal("run_id", runID),
	}
	if pass > 0 {
		where = append(where, sb.Equal("pass", pass))
	}
	if minConfidence > 0 {
		where = append(where, sb.GreaterEqualThan("confidence", minConfidence))
	}
	return where
}
