// Package processor handles the ingest topics: dataset rows become typed
// deals, company records and reference companies; snapshot boundaries retire
// stale rows; run requests trigger the reconcile flow. Permanently invalid
// messages are logged and dropped so a poison payload never wedges a
// partition; store failures propagate so delivery retries.
package processor

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/internal/repositories/deal"
	"github.com/Ramsey-B/clover/pkg/extractor"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New()

// DealStore persists deal rows.
type DealStore interface {
	Upsert(ctx context.Context, tenantID string, d *models.Deal) (*deal.UpsertResult, error)
	SoftDeleteMissing(ctx context.Context, tenantID string, source models.RecordSource, syncID string) (int64, error)
}

// RecordStore persists a deal's related-party rows.
type RecordStore interface {
	ReplaceForDeal(ctx context.Context, tenantID, dealID string, records []*models.CompanyRecord) error
}

// CompanyStore persists reference companies.
type CompanyStore interface {
	Upsert(ctx context.Context, tenantID string, company *models.Company) (*models.Company, error)
}

// RunTrigger executes reconciliation runs.
type RunTrigger interface {
	Execute(ctx context.Context, req reconcile.RunRequest) (*models.ReconcileRun, error)
}

// Processor handles message processing for the ingest topics.
type Processor struct {
	logger    ectologger.Logger
	extractor *extractor.Extractor
	deals     DealStore
	records   RecordStore
	companies CompanyStore
	runs      RunTrigger

	dealFields    extractor.DealFields
	companyFields extractor.CompanyFields
}

// NewProcessor creates a new ingest processor using the canonical payload
// field layout.
func NewProcessor(
	logger ectologger.Logger,
	deals DealStore,
	records RecordStore,
	companies CompanyStore,
	runs RunTrigger,
) *Processor {
	return &Processor{
		logger:        logger,
		extractor:     extractor.New(),
		deals:         deals,
		records:       records,
		companies:     companies,
		runs:          runs,
		dealFields:    extractor.DefaultDealFields(),
		companyFields: extractor.DefaultCompanyFields(),
	}
}

// Handle dispatches one consumed message by envelope type. A nil return
// commits the message; an error leaves it for redelivery.
func (p *Processor) Handle(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.Handle")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": msg.Topic,
		"type":  msg.GetType(),
	})

	tenantID := msg.GetTenantID()
	if tenantID == "" {
		log.Error("Message has no tenant id, dropping")
		return nil
	}
	log = log.WithFields(map[string]any{"tenant_id": tenantID})

	switch msg.GetType() {
	case kafka.TypeDealUpserted:
		return p.handleDealUpsert(ctx, log, tenantID, msg)
	case kafka.TypeCompanyUpserted:
		return p.handleCompanyUpsert(ctx, log, tenantID, msg)
	case kafka.TypeDatasetCompleted:
		return p.handleDatasetCompleted(ctx, log, tenantID, msg)
	case kafka.TypeRunRequested:
		return p.handleRunRequested(ctx, log, tenantID, msg)
	default:
		log.Warn("Unknown message type, dropping")
		return nil
	}
}

func (p *Processor) handleDealUpsert(ctx context.Context, log ectologger.Logger, tenantID string, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.handleDealUpsert")
	defer span.End()

	row, err := extractor.FromJSON(msg.Envelope.Payload)
	if err != nil {
		log.WithError(err).Error("Deal payload is not an object, dropping")
		return nil
	}

	upsert, err := p.extractor.Deal(row, p.dealFields)
	if err != nil {
		log.WithError(err).Error("Failed to extract deal fields, dropping")
		return nil
	}
	if upsert.SyncID == "" {
		upsert.SyncID = msg.GetSyncID()
	}
	if err := validate.Struct(upsert); err != nil {
		log.WithError(err).Error("Deal payload failed validation, dropping")
		return nil
	}

	result, err := p.deals.Upsert(ctx, tenantID, &models.Deal{
		Source:      upsert.Source,
		SourceKey:   upsert.SourceKey,
		Name:        upsert.Name,
		AnnouncedAt: upsert.AnnouncedAt,
		SizeMUSD:    upsert.SizeMUSD,
		Type:        upsert.Type,
		Category:    upsert.Category,
		Data:        upsert.Data,
		SyncID:      upsert.SyncID,
	})
	if err != nil {
		return err
	}

	log = log.WithFields(map[string]any{
		"deal_id":    result.Deal.ID,
		"source_key": result.Deal.SourceKey,
		"is_new":     result.IsNew,
		"is_changed": result.IsChanged,
	})

	// The raw row embeds its parties, so an unchanged fingerprint means the
	// party rows are unchanged too.
	if result.IsNew || result.IsChanged {
		records := make([]*models.CompanyRecord, 0, len(upsert.Parties))
		for _, party := range upsert.Parties {
			status := party.Status
			if status == "" {
				status = models.CompanyStatusImported
			}
			records = append(records, &models.CompanyRecord{
				Source:    upsert.Source,
				SourceKey: party.SourceKey,
				Name:      party.Name,
				Status:    status,
				Role:      party.Role,
				Data:      party.Data,
				SyncID:    upsert.SyncID,
			})
		}
		if err := p.records.ReplaceForDeal(ctx, tenantID, result.Deal.ID, records); err != nil {
			return err
		}
		log = log.WithFields(map[string]any{"parties": len(records)})
	}

	log.Debug("Processed deal upsert")
	return nil
}

func (p *Processor) handleCompanyUpsert(ctx context.Context, log ectologger.Logger, tenantID string, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.handleCompanyUpsert")
	defer span.End()

	row, err := extractor.FromJSON(msg.Envelope.Payload)
	if err != nil {
		log.WithError(err).Error("Company payload is not an object, dropping")
		return nil
	}

	upsert, err := p.extractor.Company(row, p.companyFields)
	if err != nil {
		log.WithError(err).Error("Failed to extract company fields, dropping")
		return nil
	}
	if err := validate.Struct(upsert); err != nil {
		log.WithError(err).Error("Company payload failed validation, dropping")
		return nil
	}

	company, err := p.companies.Upsert(ctx, tenantID, &models.Company{
		SourceKey: upsert.SourceKey,
		Name:      upsert.Name,
		Status:    upsert.Status,
		Aliases:   upsert.Aliases,
	})
	if err != nil {
		return err
	}

	log.WithFields(map[string]any{
		"company_id": company.ID,
		"source_key": company.SourceKey,
		"aliases":    len(company.Aliases),
	}).Debug("Processed company upsert")
	return nil
}

func (p *Processor) handleDatasetCompleted(ctx context.Context, log ectologger.Logger, tenantID string, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.handleDatasetCompleted")
	defer span.End()

	var done kafka.DatasetCompleted
	if err := msg.DecodePayload(&done); err != nil {
		log.WithError(err).Error("Failed to decode dataset completion, dropping")
		return nil
	}

	source := models.RecordSource(strings.ToLower(strings.TrimSpace(done.Source)))
	if source != models.RecordSourceImported && source != models.RecordSourceCurated {
		log.WithFields(map[string]any{"source": done.Source}).Error("Dataset completion names an unknown source, dropping")
		return nil
	}
	if done.SyncID == "" {
		// Without a sync id every live row would look stale.
		log.Error("Dataset completion has no sync id, dropping")
		return nil
	}

	log = log.WithFields(map[string]any{
		"source":  source,
		"sync_id": done.SyncID,
		"status":  done.Status,
	})

	if !done.Succeeded() {
		log.Info("Snapshot did not succeed, keeping existing rows")
		return nil
	}

	retired, err := p.deals.SoftDeleteMissing(ctx, tenantID, source, done.SyncID)
	if err != nil {
		return err
	}

	log.WithFields(map[string]any{"retired": retired}).Info("Processed dataset completion")
	return nil
}

func (p *Processor) handleRunRequested(ctx context.Context, log ectologger.Logger, tenantID string, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.handleRunRequested")
	defer span.End()

	var req kafka.RunRequested
	if len(msg.Envelope.Payload) > 0 {
		if err := msg.DecodePayload(&req); err != nil {
			log.WithError(err).Error("Failed to decode run request, dropping")
			return nil
		}
	}

	run, err := p.runs.Execute(ctx, reconcile.RunRequest{TenantID: tenantID, Force: req.Force})
	if err != nil {
		// A run already in flight absorbs the request.
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusConflict {
			log.Info("A run is already active, dropping request")
			return nil
		}
		// A persisted failed run has been reported through its own channel;
		// redelivering the request would just re-run a broken input set.
		if run != nil {
			log.WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Requested run failed")
			return nil
		}
		return err
	}

	log.WithFields(map[string]any{
		"run_id": run.ID,
		"status": run.Status,
		"force":  req.Force,
	}).Info("Processed run request")
	return nil
}
