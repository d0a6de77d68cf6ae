// Package mergedcompany persists the consolidated company cards a run
// produces.
package mergedcompany

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
	"id", "tenant_id", "run_id", "company_id", "name", "status", "aliases",
	"deal_ids", "roles", "data", "conflicts", "source_count", "fingerprint",
	"created_at",
}

// Repository handles merged company persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merged company repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts a run's merged cards in insertion batches.
func (r *Repository) CreateBatch(ctx context.Context, cards []*models.MergedCompany) error {
	ctx, span := tracing.StartSpan(ctx, "mergedcompany.Repository.CreateBatch")
	defer span.End()

	if len(cards) == 0 {
		return nil
	}

	now := time.Now().UTC()
	const batchSize = 200
	for start := 0; start < len(cards); start += batchSize {
		end := min(start+batchSize, len(cards))

		sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
		sb.InsertInto("merged_companies")
		sb.Cols(columns...)
		for _, card := range cards[start:end] {
			if card.ID == "" {
				card.ID = uuid.New().String()
			}
			card.CreatedAt = now
			sb.Values(card.ID, card.TenantID, card.RunID, card.CompanyID, card.Name, card.Status,
				card.Aliases, card.DealIDs, card.Roles, card.Data, card.Conflicts,
				card.SourceCount, card.Fingerprint, card.CreatedAt)
		}

		query, args := sb.Build()
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(cards)}).Error("Failed to create merged companies")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merged companies")
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(cards)}).Debug("Created merged companies")
	return nil
}

// Get retrieves a merged company by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.MergedCompany, error) {
	ctx, span := tracing.StartSpan(ctx, "mergedcompany.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merged_companies")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var card models.MergedCompany
	if err := r.db.GetContext(ctx, &card, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("merged company %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"merged_company_id": id}).Error("Failed to get merged company")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merged company")
	}

	return &card, nil
}

// List returns one page of merged cards, optionally narrowed to a run,
// ordered by name for stable browsing.
func (r *Repository) List(ctx context.Context, tenantID, runID string, page, pageSize int) (*models.MergedCompanyListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "mergedcompany.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	where := func(sb *sqlbuilder.SelectBuilder) []string {
		conds := []string{sb.Equal("tenant_id", tenantID)}
		if runID != "" {
			conds = append(conds, sb.Equal("run_id", runID))
		}
		return conds
	}

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("merged_companies")
	countSb.Where(where(countSb)...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "run_id": runID}).Error("Failed to count merged companies")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count merged companies")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merged_companies")
	sb.Where(where(sb)...)
	sb.OrderBy("name", "id")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var cards []models.MergedCompany
	if err := r.db.SelectContext(ctx, &cards, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "run_id": runID}).Error("Failed to list merged companies")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merged companies")
	}

	return &models.MergedCompanyListResponse{
		Items:      cards,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
