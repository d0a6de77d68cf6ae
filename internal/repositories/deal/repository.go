// Package deal persists the imported and curated transaction rows a
// reconciliation run reads. Rows are upserted by (tenant, source, source key)
// with fingerprint change detection; snapshot boundaries soft-delete rows the
// latest sync no longer carries.
package deal

import (
	"encoding/json"
	"net/http"
	"time"

	"context"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var columns = []string{
	"id", "tenant_id", "source", "source_key", "name", "announced_at",
	"size_musd", "type", "category", "data", "fingerprint", "sync_id",
	"created_at", "updated_at", "deleted_at",
}

// Repository handles deal persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new deal repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertResult reports what an upsert did to the row.
type UpsertResult struct {
	Deal      *models.Deal
	IsNew     bool
	IsChanged bool
}

// contentFingerprint hashes the fields a run cares about. Sync bookkeeping is
// excluded so a re-delivered snapshot row fingerprints identically.
func contentFingerprint(deal *models.Deal) string {
	var data map[string]any
	if len(deal.Data) > 0 {
		_ = json.Unmarshal(deal.Data, &data)
	}
	return fingerprint.Generate(map[string]any{
		"source":       string(deal.Source),
		"source_key":   deal.SourceKey,
		"name":         deal.Name,
		"announced_at": deal.AnnouncedAt.UTC().Format(time.RFC3339),
		"size_musd":    deal.SizeMUSD,
		"type":         deal.Type,
		"category":     deal.Category,
		"data":         data,
	})
}

// Upsert creates or refreshes a deal keyed by (tenant, source, source key).
// The sync id always advances so snapshot soft-deletes see the row as live;
// the fingerprint only advances when the content actually changed.
func (r *Repository) Upsert(ctx context.Context, tenantID string, deal *models.Deal) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "deal.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  tenantID,
		"source":     deal.Source,
		"source_key": deal.SourceKey,
	})

	now := time.Now().UTC()
	fp := contentFingerprint(deal)

	query := `
		INSERT INTO deals (
			id, tenant_id, source, source_key, name, announced_at,
			size_musd, type, category, data, fingerprint, sync_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (tenant_id, source, source_key)
		DO UPDATE SET
			name = EXCLUDED.name,
			announced_at = EXCLUDED.announced_at,
			size_musd = EXCLUDED.size_musd,
			type = EXCLUDED.type,
			category = EXCLUDED.category,
			data = EXCLUDED.data,
			sync_id = EXCLUDED.sync_id,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
		RETURNING id, tenant_id, source, source_key, name, announced_at,
			size_musd, type, category, data, fingerprint, sync_id,
			created_at, updated_at, deleted_at,
			(xmax = 0) AS inserted
	`

	var row struct {
		models.Deal
		Inserted bool `db:"inserted"`
	}
	err := r.db.GetContext(ctx, &row, query,
		uuid.New().String(), tenantID, deal.Source, deal.SourceKey, deal.Name,
		deal.AnnouncedAt.UTC(), deal.SizeMUSD, deal.Type, deal.Category,
		deal.Data, fp, deal.SyncID, now,
	)
	if err != nil {
		log.WithError(err).Error("Failed to upsert deal")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert deal")
	}

	if row.Inserted {
		log.WithFields(map[string]any{"deal_id": row.ID}).Info("Created deal")
		return &UpsertResult{Deal: &row.Deal, IsNew: true, IsChanged: true}, nil
	}

	// The conflict update leaves the stored fingerprint alone, so the
	// returned row still carries the previous content hash.
	if !fingerprint.HasChanged(row.Fingerprint, fp) {
		log.WithFields(map[string]any{"deal_id": row.ID}).Debug("Deal unchanged")
		return &UpsertResult{Deal: &row.Deal, IsNew: false, IsChanged: false}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("deals")
	sb.Set(sb.Assign("fingerprint", fp), sb.Assign("updated_at", now))
	sb.Where(sb.Equal("id", row.ID), sb.Equal("tenant_id", tenantID))
	updateQuery, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, updateQuery, args...); err != nil {
		log.WithError(err).WithFields(map[string]any{"deal_id": row.ID}).Error("Failed to update deal fingerprint")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update deal")
	}

	row.Fingerprint = fp
	row.UpdatedAt = now
	log.WithFields(map[string]any{"deal_id": row.ID}).Info("Updated deal")
	return &UpsertResult{Deal: &row.Deal, IsNew: false, IsChanged: true}, nil
}

// ListActive returns every live deal for the tenant in stable order.
func (r *Repository) ListActive(ctx context.Context, tenantID string) ([]*models.Deal, error) {
	ctx, span := tracing.StartSpan(ctx, "deal.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("deals")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("source", "source_key")

	query, args := sb.Build()
	var deals []*models.Deal
	if err := r.db.SelectContext(ctx, &deals, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list deals")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list deals")
	}

	return deals, nil
}

// SoftDeleteMissing marks every live row of one source whose sync id is not
// the current one as deleted, cascading to the rows' company records. Called
// at a dataset snapshot boundary. Returns the number of deals retired.
func (r *Repository) SoftDeleteMissing(ctx context.Context, tenantID string, source models.RecordSource, syncID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "deal.Repository.SoftDeleteMissing")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"source":    source,
		"sync_id":   syncID,
	})

	// Rollback gets the outer ctx: with the tx-scoped ctx it would no-op.
	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		log.WithError(err).Error("Failed to start transaction")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	var retired []string
	err = tx.SelectContext(txCtx, &retired, `
		UPDATE deals
		SET deleted_at = $1, updated_at = $1
		WHERE tenant_id = $2 AND source = $3 AND deleted_at IS NULL AND sync_id <> $4
		RETURNING id
	`, now, tenantID, source, syncID)
	if err != nil {
		log.WithError(err).Error("Failed to retire stale deals")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to retire stale deals")
	}

	if len(retired) > 0 {
		ids := make([]any, len(retired))
		for i, id := range retired {
			ids[i] = id
		}
		sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		sb.Update("company_records")
		sb.Set(sb.Assign("deleted_at", now), sb.Assign("updated_at", now))
		sb.Where(
			sb.Equal("tenant_id", tenantID),
			sb.IsNull("deleted_at"),
			sb.In("deal_id", ids...),
		)
		query, args := sb.Build()
		if _, err := tx.ExecContext(txCtx, query, args...); err != nil {
			log.WithError(err).Error("Failed to retire company records of stale deals")
			return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to retire stale company records")
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		log.WithError(err).Error("Failed to commit snapshot retirement")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit")
	}

	if len(retired) > 0 {
		log.WithFields(map[string]any{"retired": len(retired)}).Info("Retired stale deals")
	}
	return int64(len(retired)), nil
}
