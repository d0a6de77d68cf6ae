package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Projector mirrors the output of a completed reconcile run into the graph
// store: one Company node per merged card, one Deal node per live deal, and
// a PARTY_TO edge for every deal the card participates in. The mirror is
// rebuilt per tenant on every run so it always reflects the latest run only.
type Projector struct {
	client *Client
	logger ectologger.Logger
}

// NewProjector creates a new graph projector
func NewProjector(client *Client, logger ectologger.Logger) *Projector {
	return &Projector{
		client: client,
		logger: logger,
	}
}

// ProjectRun replaces the tenant's graph mirror with the given run's output.
func (p *Projector) ProjectRun(ctx context.Context, run *models.ReconcileRun, deals []*models.Deal, cards []*models.MergedCompany) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectRun")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": run.TenantID,
		"run_id":    run.ID,
		"deals":     len(deals),
		"companies": len(cards),
	})

	dealBatch := dealRows(run, deals)
	companyBatch := companyRows(cards)
	edgeBatch := edgeRows(cards)

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Drop the previous mirror first. Stale nodes from an earlier run
		// must never survive into the new projection.
		_, err := tx.Run(ctx, `
			MATCH (n {tenant_id: $tenant_id})
			WHERE n:Company OR n:Deal
			DETACH DELETE n
		`, map[string]any{"tenant_id": run.TenantID})
		if err != nil {
			return nil, err
		}

		if len(dealBatch) > 0 {
			_, err = tx.Run(ctx, `
				UNWIND $batch AS row
				MERGE (d:Deal {id: row.id, tenant_id: row.tenant_id})
				SET d += row.props
			`, map[string]any{"batch": dealBatch})
			if err != nil {
				return nil, err
			}
		}

		if len(companyBatch) > 0 {
			_, err = tx.Run(ctx, `
				UNWIND $batch AS row
				MERGE (c:Company {id: row.id, tenant_id: row.tenant_id})
				SET c += row.props
			`, map[string]any{"batch": companyBatch})
			if err != nil {
				return nil, err
			}
		}

		if len(edgeBatch) > 0 {
			_, err = tx.Run(ctx, `
				UNWIND $batch AS row
				MATCH (c:Company {id: row.company_id, tenant_id: row.tenant_id})
				MATCH (d:Deal {id: row.deal_id, tenant_id: row.tenant_id})
				MERGE (c)-[r:PARTY_TO {tenant_id: row.tenant_id}]->(d)
				SET r.roles = row.roles, r.run_id = row.run_id
			`, map[string]any{"batch": edgeBatch})
			if err != nil {
				return nil, err
			}
		}

		return nil, nil
	})

	if err != nil {
		log.WithError(err).Error("Failed to project run into graph")
		return fmt.Errorf("failed to project run %s: %w", run.ID, err)
	}

	log.Info("Projected run into graph")
	return nil
}

func dealRows(run *models.ReconcileRun, deals []*models.Deal) []map[string]any {
	rows := make([]map[string]any, 0, len(deals))
	for _, d := range deals {
		props := map[string]any{
			"name":       d.Name,
			"source":     string(d.Source),
			"source_key": d.SourceKey,
			"size_musd":  d.SizeMUSD,
			"type":       d.Type,
			"category":   d.Category,
			"run_id":     run.ID,
		}
		if !d.AnnouncedAt.IsZero() {
			props["announced_at"] = d.AnnouncedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, map[string]any{
			"id":        d.ID,
			"tenant_id": d.TenantID,
			"props":     props,
		})
	}
	return rows
}

func companyRows(cards []*models.MergedCompany) []map[string]any {
	rows := make([]map[string]any, 0, len(cards))
	for _, card := range cards {
		props := map[string]any{
			"name":         card.Name,
			"status":       string(card.Status),
			"aliases":      stringList(card.Aliases),
			"roles":        stringList(card.Roles),
			"deal_count":   len(card.DealIDs),
			"source_count": card.SourceCount,
			"run_id":       card.RunID,
		}
		if card.CompanyID != nil {
			props["company_id"] = *card.CompanyID
		}
		rows = append(rows, map[string]any{
			"id":        card.ID,
			"tenant_id": card.TenantID,
			"props":     props,
		})
	}
	return rows
}

func edgeRows(cards []*models.MergedCompany) []map[string]any {
	var rows []map[string]any
	for _, card := range cards {
		for _, dealID := range card.DealIDs {
			rows = append(rows, map[string]any{
				"company_id": card.ID,
				"deal_id":    dealID,
				"tenant_id":  card.TenantID,
				"run_id":     card.RunID,
				"roles":      stringList(card.Roles),
			})
		}
	}
	return rows
}

// stringList converts to []any, the element type the Bolt driver accepts
// for list parameters.
func stringList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
