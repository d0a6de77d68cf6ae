// Package company persists the curated reference companies and their alias
// spellings. The alias index is rebuilt from this table at the start of every
// reconciliation run.
package company

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
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Repository handles reference company persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new company repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates or refreshes a reference company keyed by (tenant, source
// key) and replaces its alias rows in the same transaction.
func (r *Repository) Upsert(ctx context.Context, tenantID string, company *models.Company) (*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  tenantID,
		"source_key": company.SourceKey,
	})

	// Rollback gets the outer ctx: with the tx-scoped ctx it would no-op.
	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		log.WithError(err).Error("Failed to start transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	status := company.Status
	if status == "" {
		status = models.CompanyStatusEnabled
	}

	query := `
		INSERT INTO companies (id, tenant_id, source_key, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (tenant_id, source_key)
		DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
		RETURNING id, tenant_id, source_key, name, status, created_at, updated_at, deleted_at
	`
	var row models.Company
	err = tx.GetContext(txCtx, &row, query,
		uuid.New().String(), tenantID, company.SourceKey, company.Name, status, now,
	)
	if err != nil {
		log.WithError(err).Error("Failed to upsert company")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert company")
	}

	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom("company_aliases")
	del.Where(del.Equal("tenant_id", tenantID), del.Equal("company_id", row.ID))
	delQuery, delArgs := del.Build()
	if _, err := tx.ExecContext(txCtx, delQuery, delArgs...); err != nil {
		log.WithError(err).WithFields(map[string]any{"company_id": row.ID}).Error("Failed to delete company aliases")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace company aliases")
	}

	// The company's own name is an alias of itself; sources may also repeat
	// it in the alias list, so de-duplicate on the normalized key.
	aliases := append([]string{company.Name}, company.Aliases...)
	seen := make(map[string]bool, len(aliases))
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("company_aliases")
	sb.Cols("id", "tenant_id", "company_id", "alias", "normalized", "soundex", "metaphone", "created_at")
	rows := 0
	kept := make([]string, 0, len(company.Aliases))
	for i, alias := range aliases {
		key := normalizers.CompanyName(alias)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		sb.Values(uuid.New().String(), tenantID, row.ID, alias, key, normalizers.Soundex(key), normalizers.Metaphone(key), now)
		rows++
		if i > 0 {
			kept = append(kept, alias)
		}
	}
	if rows > 0 {
		insQuery, insArgs := sb.Build()
		if _, err := tx.ExecContext(txCtx, insQuery, insArgs...); err != nil {
			log.WithError(err).WithFields(map[string]any{"company_id": row.ID}).Error("Failed to insert company aliases")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace company aliases")
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		log.WithError(err).Error("Failed to commit company upsert")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit")
	}

	row.Aliases = kept
	log.WithFields(map[string]any{"company_id": row.ID, "aliases": rows}).Info("Upserted company")
	return &row, nil
}

// ListActive returns every live reference company with its alias spellings.
func (r *Repository) ListActive(ctx context.Context, tenantID string) ([]*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "source_key", "name", "status", "created_at", "updated_at", "deleted_at")
	sb.From("companies")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("source_key")

	query, args := sb.Build()
	var companies []*models.Company
	if err := r.db.SelectContext(ctx, &companies, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list companies")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list companies")
	}
	if len(companies) == 0 {
		return companies, nil
	}

	byID := make(map[string]*models.Company, len(companies))
	for _, c := range companies {
		byID[c.ID] = c
	}

	aliasSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	aliasSb.Select("company_id", "alias")
	aliasSb.From("company_aliases")
	aliasSb.Where(aliasSb.Equal("tenant_id", tenantID))
	aliasSb.OrderBy("company_id", "alias")

	aliasQuery, aliasArgs := aliasSb.Build()
	var aliasRows []struct {
		CompanyID string `db:"company_id"`
		Alias     string `db:"alias"`
	}
	if err := r.db.SelectContext(ctx, &aliasRows, aliasQuery, aliasArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list company aliases")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list company aliases")
	}

	for _, row := range aliasRows {
		company, ok := byID[row.CompanyID]
		if !ok {
			continue
		}
		// The self-name alias is implicit on the model.
		if row.Alias == company.Name {
			continue
		}
		company.Aliases = append(company.Aliases, row.Alias)
	}

	return companies, nil
}
