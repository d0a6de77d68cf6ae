// Package companyrecord persists the per-deal related-party rows the merge
// engine consolidates. Parties arrive nested in deal upserts, so a fresh
// extraction replaces the deal's rows wholesale.
package companyrecord

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
	"id", "tenant_id", "source", "source_key", "name", "status", "role",
	"deal_id", "data", "sync_id", "created_at", "updated_at", "deleted_at",
}

// Repository handles company record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new company record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ReplaceForDeal swaps the deal's party rows for the freshly extracted set
// in one transaction.
func (r *Repository) ReplaceForDeal(ctx context.Context, tenantID, dealID string, records []*models.CompanyRecord) error {
	ctx, span := tracing.StartSpan(ctx, "companyrecord.Repository.ReplaceForDeal")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"deal_id":   dealID,
		"count":     len(records),
	})

	// Rollback gets the outer ctx: with the tx-scoped ctx it would no-op.
	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		log.WithError(err).Error("Failed to start transaction")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom("company_records")
	del.Where(del.Equal("tenant_id", tenantID), del.Equal("deal_id", dealID))
	query, args := del.Build()
	if _, err := tx.ExecContext(txCtx, query, args...); err != nil {
		log.WithError(err).Error("Failed to delete existing company records")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace company records")
	}

	if len(records) > 0 {
		now := time.Now().UTC()
		sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
		sb.InsertInto("company_records")
		sb.Cols("id", "tenant_id", "source", "source_key", "name", "status", "role", "deal_id", "data", "sync_id", "created_at", "updated_at")
		for _, record := range records {
			if record.ID == "" {
				record.ID = uuid.New().String()
			}
			record.TenantID = tenantID
			record.DealID = dealID
			record.CreatedAt = now
			record.UpdatedAt = now
			sb.Values(record.ID, record.TenantID, record.Source, record.SourceKey, record.Name, record.Status, record.Role, record.DealID, record.Data, record.SyncID, now, now)
		}
		query, args := sb.Build()
		if _, err := tx.ExecContext(txCtx, query, args...); err != nil {
			log.WithError(err).Error("Failed to insert company records")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace company records")
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		log.WithError(err).Error("Failed to commit company record replacement")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit")
	}

	log.Debug("Replaced company records for deal")
	return nil
}

// ListActive returns every live company record for the tenant in stable
// order.
func (r *Repository) ListActive(ctx context.Context, tenantID string) ([]*models.CompanyRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "companyrecord.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("company_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("deal_id", "source_key", "id")

	query, args := sb.Build()
	var records []*models.CompanyRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list company records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list company records")
	}

	return records, nil
}
