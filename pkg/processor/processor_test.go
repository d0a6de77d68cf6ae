package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/repositories/deal"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
)

type fakeDealStore struct {
	upserts    []*models.Deal
	result     *deal.UpsertResult
	err        error
	retireArgs []string
	retired    int64
}

func (f *fakeDealStore) Upsert(_ context.Context, _ string, d *models.Deal) (*deal.UpsertResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.upserts = append(f.upserts, d)
	if f.result != nil {
		return f.result, nil
	}
	stored := *d
	stored.ID = "deal-1"
	return &deal.UpsertResult{Deal: &stored, IsNew: true, IsChanged: true}, nil
}

func (f *fakeDealStore) SoftDeleteMissing(_ context.Context, tenantID string, source models.RecordSource, syncID string) (int64, error) {
	f.retireArgs = append(f.retireArgs, tenantID, string(source), syncID)
	return f.retired, nil
}

type fakeRecordStore struct {
	calls   int
	dealID  string
	records []*models.CompanyRecord
}

func (f *fakeRecordStore) ReplaceForDeal(_ context.Context, _, dealID string, records []*models.CompanyRecord) error {
	f.calls++
	f.dealID = dealID
	f.records = records
	return nil
}

type fakeCompanyStore struct {
	companies []*models.Company
}

func (f *fakeCompanyStore) Upsert(_ context.Context, _ string, company *models.Company) (*models.Company, error) {
	stored := *company
	stored.ID = "company-1"
	f.companies = append(f.companies, &stored)
	return &stored, nil
}

type fakeRunTrigger struct {
	requests []reconcile.RunRequest
	run      *models.ReconcileRun
	err      error
}

func (f *fakeRunTrigger) Execute(_ context.Context, req reconcile.RunRequest) (*models.ReconcileRun, error) {
	f.requests = append(f.requests, req)
	return f.run, f.err
}

type procHarness struct {
	processor *Processor
	deals     *fakeDealStore
	records   *fakeRecordStore
	companies *fakeCompanyStore
	runs      *fakeRunTrigger
}

func newProcHarness() *procHarness {
	h := &procHarness{
		deals:     &fakeDealStore{},
		records:   &fakeRecordStore{},
		companies: &fakeCompanyStore{},
		runs: &fakeRunTrigger{
			run: &models.ReconcileRun{ID: "run-1", Status: models.RunStatusCompleted},
		},
	}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	h.processor = NewProcessor(logger, h.deals, h.records, h.companies, h.runs)
	return h
}

func message(t *testing.T, msgType, tenantID string, payload any) *kafka.IncomingMessage {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = data
	}
	return &kafka.IncomingMessage{
		Topic: "clover.test",
		Envelope: &kafka.Envelope{
			Type:     msgType,
			TenantID: tenantID,
			Payload:  raw,
		},
	}
}

func TestHandleDealUpsertStoresDealAndParties(t *testing.T) {
	h := newProcHarness()
	msg := message(t, kafka.TypeDealUpserted, "t1", map[string]any{
		"source":       "imported",
		"source_key":   "cb-1",
		"name":         "Acme Corporation",
		"announced_at": "2025-03-10",
		"size_musd":    "$150M",
		"type":         "acquisition",
		"sync_id":      "sync-1",
		"parties": []any{
			map[string]any{"name": "Acme Corporation", "role": "target"},
			map[string]any{"name": "Globex Holdings", "role": "buyer"},
		},
	})

	require.NoError(t, h.processor.Handle(context.Background(), msg))

	require.Len(t, h.deals.upserts, 1)
	stored := h.deals.upserts[0]
	assert.Equal(t, models.RecordSourceImported, stored.Source)
	assert.Equal(t, "cb-1", stored.SourceKey)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), stored.AnnouncedAt)
	assert.InDelta(t, 150.0, stored.SizeMUSD, 0.0001)
	assert.Equal(t, "sync-1", stored.SyncID)

	require.Equal(t, 1, h.records.calls)
	assert.Equal(t, "deal-1", h.records.dealID)
	require.Len(t, h.records.records, 2)
	assert.Equal(t, models.CompanyRoleTarget, h.records.records[0].Role)
	assert.Equal(t, models.CompanyRoleAcquirer, h.records.records[1].Role)
	assert.Equal(t, models.CompanyStatusImported, h.records.records[0].Status)
	assert.Equal(t, "sync-1", h.records.records[0].SyncID)
}

func TestHandleDealUpsertSkipsPartiesWhenUnchanged(t *testing.T) {
	h := newProcHarness()
	h.deals.result = &deal.UpsertResult{
		Deal:      &models.Deal{ID: "deal-1", SourceKey: "cb-1"},
		IsNew:     false,
		IsChanged: false,
	}
	msg := message(t, kafka.TypeDealUpserted, "t1", map[string]any{
		"source":       "imported",
		"source_key":   "cb-1",
		"name":         "Acme Corporation",
		"announced_at": "2025-03-10",
		"parties": []any{
			map[string]any{"name": "Acme Corporation", "role": "target"},
		},
	})

	require.NoError(t, h.processor.Handle(context.Background(), msg))
	assert.Equal(t, 0, h.records.calls)
}

func TestHandleDealUpsertDropsInvalidPayload(t *testing.T) {
	h := newProcHarness()
	// Name is required; the message commits without touching the store.
	msg := message(t, kafka.TypeDealUpserted, "t1", map[string]any{
		"source":     "imported",
		"source_key": "cb-1",
	})

	require.NoError(t, h.processor.Handle(context.Background(), msg))
	assert.Empty(t, h.deals.upserts)
}

func TestHandleDealUpsertDropsUnparseableSize(t *testing.T) {
	h := newProcHarness()
	msg := message(t, kafka.TypeDealUpserted, "t1", map[string]any{
		"source":     "imported",
		"source_key": "cb-1",
		"name":       "Acme",
		"size_musd":  "call us",
	})

	require.NoError(t, h.processor.Handle(context.Background(), msg))
	assert.Empty(t, h.deals.upserts)
}

func TestHandleDealUpsertPropagatesStoreFailure(t *testing.T) {
	h := newProcHarness()
	h.deals.err = fmt.Errorf("connection refused")
	msg := message(t, kafka.TypeDealUpserted, "t1", map[string]any{
		"source":     "imported",
		"source_key": "cb-1",
		"name":       "Acme",
	})

	err := h.processor.Handle(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHandleCompanyUpsert(t *testing.T) {
	h := newProcHarness()
	msg := message(t, kafka.TypeCompanyUpserted, "t1", map[string]any{
		"source_key": "ref-1",
		"name":       "Meta Platforms",
		"status":     "enabled",
		"aliases":    []any{"Facebook"},
	})

	require.NoError(t, h.processor.Handle(context.Background(), msg))

	require.Len(t, h.companies.companies, 1)
	company := h.companies.companies[0]
	assert.Equal(t, "Meta Platforms", company.Name)
	assert.Equal(t, models.CompanyStatusEnabled, company.Status)
	assert.Equal(t, []string{"Facebook"}, company.Aliases)
}

func TestHandleDatasetCompletedRetiresStaleRows(t *testing.T) {
	h := newProcHarness()
	h.deals.retired = 4
	msg := message(t, kafka.TypeDatasetCompleted, "t1", kafka.DatasetCompleted{
		Source: "imported",
		SyncID: "sync-9",
		Status: "success",
	})

	require.NoError(t, h.processor.Handle(context.Background(), msg))
	assert.Equal(t, []string{"t1", "imported", "sync-9"}, h.deals.retireArgs)
}

func TestHandleDatasetCompletedIgnoresFailedSnapshot(t *testing.T) {
	h := newProcHarness()
	msg := message(t, kafka.TypeDatasetCompleted, "t1", kafka.DatasetCompleted{
		Source: "imported",
		SyncID: "sync-9",
		Status: "failed",
	})

	require.NoError(t, h.processor.Handle(context.Background(), msg))
	assert.Empty(t, h.deals.retireArgs)
}

func TestHandleDatasetCompletedRequiresSyncID(t *testing.T) {
	h := newProcHarness()
	msg := message(t, kafka.TypeDatasetCompleted, "t1", kafka.DatasetCompleted{
		Source: "imported",
		Status: "success",
	})

	require.NoError(t, h.processor.Handle(context.Background(), msg))
	assert.Empty(t, h.deals.retireArgs)
}

func TestHandleRunRequested(t *testing.T) {
	h := newProcHarness()
	msg := message(t, kafka.TypeRunRequested, "t1", kafka.RunRequested{Force: true})

	require.NoError(t, h.processor.Handle(context.Background(), msg))

	require.Len(t, h.runs.requests, 1)
	assert.Equal(t, "t1", h.runs.requests[0].TenantID)
	assert.True(t, h.runs.requests[0].Force)
}

func TestHandleRunRequestedWithoutPayload(t *testing.T) {
	h := newProcHarness()
	msg := message(t, kafka.TypeRunRequested, "t1", nil)

	require.NoError(t, h.processor.Handle(context.Background(), msg))
	require.Len(t, h.runs.requests, 1)
	assert.False(t, h.runs.requests[0].Force)
}

func TestHandleRunRequestedAbsorbsActiveRun(t *testing.T) {
	h := newProcHarness()
	h.runs.run = nil
	h.runs.err = httperror.NewHTTPError(http.StatusConflict, "a run is already active")
	msg := message(t, kafka.TypeRunRequested, "t1", nil)

	require.NoError(t, h.processor.Handle(context.Background(), msg))
}

func TestHandleRunRequestedDoesNotRetryFailedRun(t *testing.T) {
	h := newProcHarness()
	h.runs.run = &models.ReconcileRun{ID: "run-1", Status: models.RunStatusFailed}
	h.runs.err = fmt.Errorf("curated dataset is empty for tenant t1")
	msg := message(t, kafka.TypeRunRequested, "t1", nil)

	require.NoError(t, h.processor.Handle(context.Background(), msg))
}

func TestHandleRunRequestedRetriesTransientFailure(t *testing.T) {
	h := newProcHarness()
	h.runs.run = nil
	h.runs.err = fmt.Errorf("dial tcp: connection refused")
	msg := message(t, kafka.TypeRunRequested, "t1", nil)

	require.Error(t, h.processor.Handle(context.Background(), msg))
}

func TestHandleDropsUnknownType(t *testing.T) {
	h := newProcHarness()
	msg := message(t, "price.updated", "t1", map[string]any{"x": 1})

	require.NoError(t, h.processor.Handle(context.Background(), msg))
	assert.Empty(t, h.deals.upserts)
}

func TestHandleDropsMissingTenant(t *testing.T) {
	h := newProcHarness()
	msg := message(t, kafka.TypeDealUpserted, "", map[string]any{
		"source": "imported", "source_key": "cb-1", "name": "Acme",
	})

	require.NoError(t, h.processor.Handle(context.Background(), msg))
	assert.Empty(t, h.deals.upserts)
}
