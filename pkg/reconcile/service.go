// Package reconcile coordinates a full reconciliation run: load the tenant's
// datasets, build the alias index, match imported deals against curated ones,
// consolidate company records into merged cards, audit the output and persist
// every artifact under one run id. Runs are idempotent: unchanged inputs
// short-circuit to the previous completed run.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/aliasindex"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/knowledge"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DealStore loads the transaction rows a run reads.
type DealStore interface {
	ListActive(ctx context.Context, tenantID string) ([]*models.Deal, error)
}

// CompanyRecordStore loads the related-party rows a run consolidates.
type CompanyRecordStore interface {
	ListActive(ctx context.Context, tenantID string) ([]*models.CompanyRecord, error)
}

// CompanyStore loads the reference companies the alias index is built from.
type CompanyStore interface {
	ListActive(ctx context.Context, tenantID string) ([]*models.Company, error)
}

// RunStore persists run lifecycle transitions.
type RunStore interface {
	Create(ctx context.Context, tenantID, inputFingerprint string) (*models.ReconcileRun, error)
	Complete(ctx context.Context, tenantID, id string, stats models.RunStats) (*models.ReconcileRun, error)
	Fail(ctx context.Context, tenantID, id string, stats models.RunStats, runErr error) (*models.ReconcileRun, error)
	LatestCompleted(ctx context.Context, tenantID string) (*models.ReconcileRun, error)
}

// MatchResultStore persists the scored match table.
type MatchResultStore interface {
	CreateBatch(ctx context.Context, results []*models.MatchResult) error
}

// MergedCompanyStore persists the consolidated cards.
type MergedCompanyStore interface {
	CreateBatch(ctx context.Context, cards []*models.MergedCompany) error
}

// ExceptionStore persists the human-review list.
type ExceptionStore interface {
	CreateBatch(ctx context.Context, exceptions []*models.Exception) error
}

// Emitter publishes run lifecycle events.
type Emitter interface {
	RunCompleted(ctx context.Context, run *models.ReconcileRun) error
	RunFailed(ctx context.Context, run *models.ReconcileRun) error
	ExceptionsRaised(ctx context.Context, run *models.ReconcileRun, kinds map[string]int) error
}

// Projector mirrors a run's output into the graph store. Nil disables
// projection.
type Projector interface {
	ProjectRun(ctx context.Context, run *models.ReconcileRun, deals []*models.Deal, cards []*models.MergedCompany) error
}

// Stores bundles the persistence dependencies of the service.
type Stores struct {
	Deals      DealStore
	Records    CompanyRecordStore
	Companies  CompanyStore
	Runs       RunStore
	Matches    MatchResultStore
	Merged     MergedCompanyStore
	Exceptions ExceptionStore
}

// Config tunes a run.
type Config struct {
	// RunTimeout bounds one full run; zero disables the bound.
	RunTimeout time.Duration
	// Engine tunes the match passes.
	Engine matching.EngineConfig
	// FieldStrategies override per-field merge behavior.
	FieldStrategies []models.FieldMergeStrategy
}

// Service executes reconciliation runs.
type Service struct {
	logger    ectologger.Logger
	stores    Stores
	emitter   Emitter
	projector Projector
	kb        *knowledge.Base
	config    Config
}

// NewService creates a new reconcile service. projector may be nil.
func NewService(logger ectologger.Logger, stores Stores, emitter Emitter, projector Projector, kb *knowledge.Base, config Config) *Service {
	return &Service{
		logger:    logger,
		stores:    stores,
		emitter:   emitter,
		projector: projector,
		kb:        kb,
		config:    config,
	}
}

// RunRequest triggers one run.
type RunRequest struct {
	TenantID string
	// Force bypasses the input fingerprint short-circuit.
	Force bool
}

// Execute runs the full flow for a tenant and returns the finished run row.
// A failed run is persisted as failed and returned alongside the error.
func (s *Service) Execute(ctx context.Context, req RunRequest) (*models.ReconcileRun, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Service.Execute")
	defer span.End()

	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": req.TenantID,
		"force":     req.Force,
	})

	deals, err := s.stores.Deals.ListActive(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	records, err := s.stores.Records.ListActive(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	companies, err := s.stores.Companies.ListActive(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	inputFP := inputFingerprint(deals, records, companies)

	if !req.Force {
		last, err := s.stores.Runs.LatestCompleted(ctx, req.TenantID)
		if err != nil {
			return nil, err
		}
		if last != nil && last.InputFingerprint == inputFP {
			log.WithFields(map[string]any{"run_id": last.ID}).Info("Inputs unchanged since last completed run, skipping")
			metrics.RecordRun(req.TenantID, "skipped", 0)
			return last, nil
		}
	}

	run, err := s.stores.Runs.Create(ctx, req.TenantID, inputFP)
	if err != nil {
		return nil, err
	}
	log = log.WithFields(map[string]any{"run_id": run.ID})
	log.Info("Starting reconciliation run")

	started := time.Now()
	stats, runErr := s.process(ctx, run, deals, records, companies)
	stats.DurationMS = time.Since(started).Milliseconds()

	if runErr != nil {
		log.WithError(runErr).Error("Reconciliation run failed")
		failed, failErr := s.stores.Runs.Fail(ctx, req.TenantID, run.ID, stats, runErr)
		if failErr != nil {
			log.WithError(failErr).Error("Failed to persist run failure")
			return nil, failErr
		}
		metrics.RecordRun(req.TenantID, string(models.RunStatusFailed), time.Since(started).Seconds())
		if err := s.emitter.RunFailed(ctx, failed); err != nil {
			log.WithError(err).Warn("Failed to emit run failure event")
		}
		return failed, runErr
	}

	completed, err := s.stores.Runs.Complete(ctx, req.TenantID, run.ID, stats)
	if err != nil {
		return nil, err
	}
	metrics.RecordRun(req.TenantID, string(models.RunStatusCompleted), time.Since(started).Seconds())
	log.WithFields(map[string]any{
		"matches":     stats.Matches(),
		"merged":      stats.MergedCompanies,
		"exceptions":  stats.Exceptions,
		"duration_ms": stats.DurationMS,
	}).Info("Reconciliation run complete")

	if err := s.emitter.RunCompleted(ctx, completed); err != nil {
		log.WithError(err).Warn("Failed to emit run completion event")
	}

	return completed, nil
}

// process performs the run stages and returns the stats gathered up to the
// first failure.
func (s *Service) process(ctx context.Context, run *models.ReconcileRun, deals []*models.Deal, records []*models.CompanyRecord, companies []*models.Company) (models.RunStats, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Service.process")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": run.TenantID,
		"run_id":    run.ID,
	})

	var stats models.RunStats
	stats.CompanyRecords = len(records)

	imported := make([]*models.Deal, 0, len(deals))
	curated := make([]*models.Deal, 0, len(deals))
	for _, deal := range deals {
		switch deal.Source {
		case models.RecordSourceImported:
			imported = append(imported, deal)
		case models.RecordSourceCurated:
			curated = append(curated, deal)
		}
	}
	stats.ImportedDeals = len(imported)
	stats.CuratedDeals = len(curated)

	if len(curated) == 0 {
		return stats, fmt.Errorf("curated dataset is empty for tenant %s", run.TenantID)
	}

	index := aliasindex.Build(companies)
	stats.IndexAliases = index.Keys()
	stats.IndexCollisions = len(index.Collisions())
	if len(companies) > 0 && index.Keys() == 0 {
		return stats, fmt.Errorf("alias index is empty despite %d reference companies", len(companies))
	}

	matchStarted := time.Now()
	engine := matching.NewEngine(s.logger, matching.NewScorer(index, s.kb), s.config.Engine)
	matchOut, err := engine.Run(ctx, matching.Input{Imported: imported, Curated: curated})
	if err != nil {
		return stats, fmt.Errorf("matching failed: %w", err)
	}
	stats.MatchDurationMS = time.Since(matchStarted).Milliseconds()
	stats.UnmatchedImported = len(matchOut.UnmatchedImported)
	stats.UnmatchedCurated = len(matchOut.UnmatchedCurated)
	stats.ByConfidence = make(map[string]int)
	for _, match := range matchOut.Matches {
		switch match.Pass {
		case 1:
			stats.Pass1Matches++
		case 2:
			stats.Pass2Matches++
		case 3:
			stats.Pass3Matches++
		}
		stats.ByConfidence[strconv.Itoa(int(match.Confidence))]++
		metrics.RecordMatch(run.TenantID, strconv.Itoa(match.Pass), strconv.Itoa(int(match.Confidence)))
	}
	metrics.UnmatchedDeals.WithLabelValues(run.TenantID, string(models.RecordSourceImported)).Set(float64(stats.UnmatchedImported))
	metrics.UnmatchedDeals.WithLabelValues(run.TenantID, string(models.RecordSourceCurated)).Set(float64(stats.UnmatchedCurated))

	pairs := dealPairs(matchOut.Matches)

	mergeStarted := time.Now()
	merger := merging.NewEngine(s.logger, index, s.config.FieldStrategies)
	mergeOut, err := merger.Merge(ctx, merging.Input{
		TenantID:  run.TenantID,
		RunID:     run.ID,
		Records:   records,
		DealPairs: pairs,
	})
	if err != nil {
		return stats, fmt.Errorf("merging failed: %w", err)
	}
	stats.MergeDurationMS = time.Since(mergeStarted).Milliseconds()
	stats.MergedCompanies = len(mergeOut.Merged)
	for _, card := range mergeOut.Merged {
		stats.MergeConflicts += len(card.Conflicts.Data)
	}
	metrics.MergedCompanies.WithLabelValues(run.TenantID).Set(float64(stats.MergedCompanies))

	verifier := merging.NewVerifier(s.logger, index)
	audit := verifier.Verify(ctx, merging.VerifyInput{
		Merged:    mergeOut.Merged,
		Records:   records,
		Deals:     deals,
		DealPairs: pairs,
	})

	exceptions := s.assembleExceptions(run, index, matchOut, mergeOut, audit)
	stats.Exceptions = len(exceptions)

	if err := s.stores.Matches.CreateBatch(ctx, matchResults(run, matchOut.Matches)); err != nil {
		return stats, fmt.Errorf("persisting match results: %w", err)
	}
	if err := s.stores.Merged.CreateBatch(ctx, mergeOut.Merged); err != nil {
		return stats, fmt.Errorf("persisting merged companies: %w", err)
	}
	if err := s.stores.Exceptions.CreateBatch(ctx, exceptions); err != nil {
		return stats, fmt.Errorf("persisting exceptions: %w", err)
	}

	if len(exceptions) > 0 {
		kinds := make(map[string]int)
		for _, exc := range exceptions {
			kinds[string(exc.Kind)]++
			metrics.RecordException(run.TenantID, string(exc.Kind))
		}
		if err := s.emitter.ExceptionsRaised(ctx, run, kinds); err != nil {
			log.WithError(err).Warn("Failed to emit exceptions event")
		}
	}

	if s.projector != nil {
		projectionStarted := time.Now()
		if err := s.projector.ProjectRun(ctx, run, deals, mergeOut.Merged); err != nil {
			// The graph is a queryable mirror, not the system of record.
			log.WithError(err).Error("Graph projection failed")
		} else {
			metrics.GraphProjectionDuration.WithLabelValues(run.TenantID).Observe(time.Since(projectionStarted).Seconds())
		}
	}

	return stats, nil
}

// inputFingerprint hashes everything a run reads. Lines are sorted so storage
// order never changes the hash.
func inputFingerprint(deals []*models.Deal, records []*models.CompanyRecord, companies []*models.Company) string {
	lines := make([]string, 0, len(deals)+len(records)+len(companies))
	for _, deal := range deals {
		lines = append(lines, "deal:"+string(deal.Source)+":"+deal.SourceKey+":"+deal.Fingerprint)
	}
	for _, record := range records {
		lines = append(lines, "record:"+record.DealID+":"+record.SourceKey+":"+string(record.Role)+":"+string(record.Status)+":"+record.Name+":"+string(record.Data))
	}
	for _, company := range companies {
		line := "company:" + company.SourceKey + ":" + string(company.Status) + ":" + company.Name
		aliases := append([]string(nil), company.Aliases...)
		sort.Strings(aliases)
		for _, alias := range aliases {
			line += ":" + alias
		}
		lines = append(lines, line)
	}
	sort.Strings(lines)
	return fingerprint.FromStrings(lines)
}

// dealPairs maps each matched deal id to its counterpart, both directions.
func dealPairs(matches []*models.MatchCandidate) map[string]string {
	pairs := make(map[string]string, len(matches)*2)
	for _, match := range matches {
		if match.Left.ID == "" || match.Right.ID == "" {
			continue
		}
		pairs[match.Left.ID] = match.Right.ID
		pairs[match.Right.ID] = match.Left.ID
	}
	return pairs
}

// matchResults converts claimed candidates to persistable rows.
func matchResults(run *models.ReconcileRun, matches []*models.MatchCandidate) []*models.MatchResult {
	results := make([]*models.MatchResult, 0, len(matches))
	for _, match := range matches {
		results = append(results, &models.MatchResult{
			TenantID:        run.TenantID,
			RunID:           run.ID,
			ImportedDealID:  match.Left.ID,
			CuratedDealID:   match.Right.ID,
			AttributeScores: match.Scores,
			Confidence:      match.Confidence,
			Pass:            match.Pass,
		})
	}
	return results
}

// assembleExceptions flattens every review finding of the run into rows:
// alias collisions, match-stage data quality rejections, unclaimed imported
// deals, merge exclusions and verifier audit findings.
func (s *Service) assembleExceptions(run *models.ReconcileRun, index *aliasindex.Index, matchOut *matching.Output, mergeOut *merging.Output, audit []merging.Issue) []*models.Exception {
	var exceptions []*models.Exception
	add := func(kind models.ExceptionKind, message string, recordID string, details map[string]any) {
		exc := &models.Exception{
			TenantID: run.TenantID,
			RunID:    run.ID,
			Kind:     kind,
			Message:  message,
			Details:  database.JSONB[map[string]any]{Data: details},
		}
		if recordID != "" {
			exc.RecordID = &recordID
		}
		exceptions = append(exceptions, exc)
	}

	for _, collision := range index.Collisions() {
		add(models.ExceptionAliasCollision,
			fmt.Sprintf("alias %q is claimed by %d companies", collision.Key, len(collision.IDs)),
			"", map[string]any{"key": collision.Key, "company_ids": collision.IDs})
	}

	for _, issue := range matchOut.Issues {
		add(models.ExceptionDataQuality,
			fmt.Sprintf("deal %q excluded from matching: %s", issue.Deal.SourceKey, issue.Reason),
			issue.Deal.ID, map[string]any{"source": issue.Deal.Source, "source_key": issue.Deal.SourceKey})
	}

	for _, deal := range matchOut.UnmatchedImported {
		add(models.ExceptionUnmatchedDeal,
			fmt.Sprintf("imported deal %q has no curated counterpart", deal.Name),
			deal.ID, map[string]any{"source_key": deal.SourceKey})
	}

	for _, issue := range mergeOut.Issues {
		add(issue.Kind, issue.Message, issue.RecordID, issue.Details)
	}
	for _, issue := range audit {
		add(issue.Kind, issue.Message, issue.RecordID, issue.Details)
	}

	return exceptions
}
