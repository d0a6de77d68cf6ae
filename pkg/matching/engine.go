package matching

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Engine links one run's imported deals to its curated deals in three passes.
// Pass 1 matches within compatible categories on a tight date window. Pass 2
// widens the window and drops category blocking to catch miscategorized
// records, at a higher name bar. Pass 3 sweeps what remains for same-event
// pairs filed under different company names and flags them for review.
//
// A deal claimed in one pass never reappears in a later one, and no deal is
// claimed twice. Every decision is deterministic for a given input set.
type Engine struct {
	logger ectologger.Logger
	scorer *Scorer
	config EngineConfig
}

// EngineConfig contains configuration for the match engine
type EngineConfig struct {
	WorkerCount int // Concurrent scoring workers (default: NumCPU)

	Pass1WindowDays   int // Date window for the in-category pass (default: 60)
	Pass1MinNameScore int // Name score floor before calibration (default: 70)

	Pass2WindowDays   int // Date window for the cross-category pass (default: 90)
	Pass2MinNameScore int // Higher floor; category no longer corroborates (default: 80)

	Pass3WindowDays   int     // Date window for the anomaly pass (default: 14)
	Pass3MaxNameScore int     // Names must score below this to be anomalies (default: 60)
	Pass3RelTolerance float64 // Anomaly size tolerance, fraction of larger (default: 0.05)
	Pass3AbsTolerance float64 // Anomaly size tolerance in $M (default: 0.5)
}

// DefaultConfig returns default engine configuration
func DefaultConfig() EngineConfig {
	return EngineConfig{
		WorkerCount:       runtime.NumCPU(),
		Pass1WindowDays:   60,
		Pass1MinNameScore: 70,
		Pass2WindowDays:   90,
		Pass2MinNameScore: 80,
		Pass3WindowDays:   14,
		Pass3MaxNameScore: 60,
		Pass3RelTolerance: 0.05,
		Pass3AbsTolerance: 0.5,
	}
}

// NewEngine creates a new match engine
func NewEngine(logger ectologger.Logger, scorer *Scorer, config EngineConfig) *Engine {
	return &Engine{
		logger: logger,
		scorer: scorer,
		config: config,
	}
}

// Input is the deal population for one run, already scoped to a tenant.
type Input struct {
	Imported []*models.Deal
	Curated  []*models.Deal
}

// Issue flags a deal excluded from matching by a data quality check.
type Issue struct {
	Deal   *models.Deal
	Reason string
}

// Output is the complete outcome of a match run. Unmatched lists are sorted
// by source key and cover only deals that were eligible for matching; deals
// rejected by quality checks appear under Issues instead.
type Output struct {
	Matches           []*models.MatchCandidate
	UnmatchedImported []*models.Deal
	UnmatchedCurated  []*models.Deal
	Issues            []Issue
}

// Run executes the three passes and returns every claimed pair.
func (e *Engine) Run(ctx context.Context, input Input) (*Output, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Run")
	defer span.End()

	imported, importedIssues := e.prepare(input.Imported)
	curated, curatedIssues := e.prepare(input.Curated)

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"imported_count": len(imported),
		"curated_count":  len(curated),
		"issue_count":    len(importedIssues) + len(curatedIssues),
	})
	log.Info("Starting match run")

	out := &Output{Issues: append(importedIssues, curatedIssues...)}
	matched := make(map[*Record]bool)

	pairs, err := e.passOne(ctx, imported, curated)
	if err != nil {
		return nil, err
	}
	pass1 := claimPairs(pairs, betterGeneral, matched)
	collectMatches(out, pass1, 1)
	imported = unmatchedRecords(imported, matched)
	curated = unmatchedRecords(curated, matched)

	pairs, err = e.passTwo(ctx, imported, curated)
	if err != nil {
		return nil, err
	}
	pass2 := claimPairs(pairs, betterGeneral, matched)
	collectMatches(out, pass2, 2)
	imported = unmatchedRecords(imported, matched)
	curated = unmatchedRecords(curated, matched)

	pairs, err = e.passThree(ctx, imported, curated)
	if err != nil {
		return nil, err
	}
	pass3 := claimPairs(pairs, betterAnomaly, matched)
	collectMatches(out, pass3, 3)

	out.UnmatchedImported = sortedDeals(unmatchedRecords(imported, matched))
	out.UnmatchedCurated = sortedDeals(unmatchedRecords(curated, matched))

	log.WithFields(map[string]any{
		"pass1_matches":      len(pass1),
		"pass2_matches":      len(pass2),
		"pass3_matches":      len(pass3),
		"unmatched_imported": len(out.UnmatchedImported),
		"unmatched_curated":  len(out.UnmatchedCurated),
	}).Info("Match run complete")

	return out, nil
}

// prepare normalizes each deal into a scoring record, diverting deals that
// fail quality checks into issues.
func (e *Engine) prepare(deals []*models.Deal) ([]*Record, []Issue) {
	records := make([]*Record, 0, len(deals))
	var issues []Issue
	for _, deal := range deals {
		record := e.scorer.Prepare(deal)
		if reason := recordIssue(record); reason != "" {
			issues = append(issues, Issue{Deal: deal, Reason: reason})
			continue
		}
		records = append(records, record)
	}
	return records, issues
}

func recordIssue(record *Record) string {
	if record.NameKey == "" {
		return "company name is empty after normalization"
	}
	if record.Deal.AnnouncedAt.IsZero() {
		return "missing announcement date"
	}
	if record.Deal.SizeMUSD < 0 {
		return "negative deal size"
	}
	return ""
}

// passOne scores in-category candidates inside the tight date window.
func (e *Engine) passOne(ctx context.Context, imported, curated []*Record) ([]*scoredPair, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.passOne")
	defer span.End()

	index := NewDateIndex(curated)
	return e.scorePairs(ctx, imported, func(left *Record) []*scoredPair {
		var pairs []*scoredPair
		for _, right := range index.Window(left.Deal.AnnouncedAt, e.config.Pass1WindowDays) {
			if !e.scorer.CategoriesCompatible(left, right) {
				continue
			}
			scores := e.scorer.Score(left, right)
			if scores.NameScore < e.config.Pass1MinNameScore {
				continue
			}
			confidence := Calibrate(scores)
			if confidence == models.ConfidenceNone {
				continue
			}
			pairs = append(pairs, &scoredPair{left: left, right: right, scores: scores, confidence: confidence})
		}
		return pairs
	})
}

// passTwo rescales to the wide window with no category blocking. Week
// partitioning only bounds the work; the day filter inside Window decides
// membership, so bucket boundaries never change which pairs are compared.
func (e *Engine) passTwo(ctx context.Context, imported, curated []*Record) ([]*scoredPair, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.passTwo")
	defer span.End()

	partition := PartitionByWeek(curated)
	return e.scorePairs(ctx, imported, func(left *Record) []*scoredPair {
		var pairs []*scoredPair
		for _, right := range partition.Window(left.Deal.AnnouncedAt, e.config.Pass2WindowDays) {
			scores := e.scorer.Score(left, right)
			if scores.NameScore < e.config.Pass2MinNameScore {
				continue
			}
			confidence := Calibrate(scores)
			if confidence == models.ConfidenceNone {
				continue
			}
			pairs = append(pairs, &scoredPair{left: left, right: right, scores: scores, confidence: confidence})
		}
		return pairs
	})
}

// passThree sweeps the leftovers for pairs that look like one event booked
// under two different company names: both sizes disclosed and nearly equal,
// dates close, types agreeing, names clearly different. Such pairs get the
// fixed review confidence rather than a calibrated one.
func (e *Engine) passThree(ctx context.Context, imported, curated []*Record) ([]*scoredPair, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.passThree")
	defer span.End()

	disclosed := make([]*Record, 0, len(curated))
	for _, record := range curated {
		if record.Deal.Disclosed() {
			disclosed = append(disclosed, record)
		}
	}
	index := NewDateIndex(disclosed)

	return e.scorePairs(ctx, imported, func(left *Record) []*scoredPair {
		if !left.Deal.Disclosed() {
			return nil
		}
		var pairs []*scoredPair
		for _, right := range index.Window(left.Deal.AnnouncedAt, e.config.Pass3WindowDays) {
			if !SizesWithin(left.Deal.SizeMUSD, right.Deal.SizeMUSD, e.config.Pass3RelTolerance, e.config.Pass3AbsTolerance) {
				continue
			}
			scores := e.scorer.Score(left, right)
			if !scores.TypeMatch {
				continue
			}
			if scores.NameScore >= e.config.Pass3MaxNameScore {
				continue
			}
			pairs = append(pairs, &scoredPair{
				left:       left,
				right:      right,
				scores:     scores,
				confidence: models.ConfidenceReview,
				sizeDiff:   SizeDiff(left.Deal.SizeMUSD, right.Deal.SizeMUSD),
			})
		}
		return pairs
	})
}

type scoreJob struct {
	index int
	left  *Record
}

type scoreResult struct {
	index int
	pairs []*scoredPair
}

// scorePairs fans the probe out over a worker pool, one job per imported
// record. Results are reduced by job index, so the returned pair order
// depends only on the input order, never on scheduling.
func (e *Engine) scorePairs(ctx context.Context, lefts []*Record, probe func(*Record) []*scoredPair) ([]*scoredPair, error) {
	if len(lefts) == 0 {
		return nil, nil
	}

	workerCount := e.config.WorkerCount
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if workerCount > len(lefts) {
		workerCount = len(lefts)
	}

	jobChan := make(chan scoreJob, len(lefts))
	resultChan := make(chan scoreResult, len(lefts))

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				select {
				case <-workerCtx.Done():
					return
				default:
				}
				resultChan <- scoreResult{index: job.index, pairs: probe(job.left)}
			}
		}()
	}

	go func() {
		defer close(jobChan)
		for i, left := range lefts {
			select {
			case <-workerCtx.Done():
				return
			case jobChan <- scoreJob{index: i, left: left}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	buckets := make([][]*scoredPair, len(lefts))
	for result := range resultChan {
		buckets[result.index] = result.pairs
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pairs []*scoredPair
	for _, bucket := range buckets {
		pairs = append(pairs, bucket...)
	}
	return pairs, nil
}

// scoredPair is one surviving candidate pair within a pass.
type scoredPair struct {
	left       *Record // imported
	right      *Record // curated
	scores     models.AttributeScores
	confidence models.Confidence
	sizeDiff   float64 // anomaly tie-break only
}

// betterGeneral orders pass 1 and 2 pairs for claiming: exact name hits
// first, then name score, then date proximity. Source keys make the order
// total, which keeps claiming repeatable when evidence ties.
func betterGeneral(a, b *scoredPair) bool {
	if a.scores.ExactMatch != b.scores.ExactMatch {
		return a.scores.ExactMatch
	}
	if a.scores.NameScore != b.scores.NameScore {
		return a.scores.NameScore > b.scores.NameScore
	}
	if a.scores.DateDiffDays != b.scores.DateDiffDays {
		return a.scores.DateDiffDays < b.scores.DateDiffDays
	}
	if a.left.Deal.SourceKey != b.left.Deal.SourceKey {
		return a.left.Deal.SourceKey < b.left.Deal.SourceKey
	}
	return a.right.Deal.SourceKey < b.right.Deal.SourceKey
}

// betterAnomaly orders pass 3 pairs: closest dates first, then closest
// sizes. Name score is useless here since every anomaly pair scores low.
func betterAnomaly(a, b *scoredPair) bool {
	if a.scores.DateDiffDays != b.scores.DateDiffDays {
		return a.scores.DateDiffDays < b.scores.DateDiffDays
	}
	if a.sizeDiff != b.sizeDiff {
		return a.sizeDiff < b.sizeDiff
	}
	if a.left.Deal.SourceKey != b.left.Deal.SourceKey {
		return a.left.Deal.SourceKey < b.left.Deal.SourceKey
	}
	return a.right.Deal.SourceKey < b.right.Deal.SourceKey
}

// claimPairs assigns pairs greedily in comparator order. Each record is
// claimed at most once; later pairs touching a claimed record lose.
func claimPairs(pairs []*scoredPair, better func(a, b *scoredPair) bool, matched map[*Record]bool) []*scoredPair {
	sort.SliceStable(pairs, func(i, j int) bool { return better(pairs[i], pairs[j]) })

	claimed := make([]*scoredPair, 0, len(pairs))
	for _, pair := range pairs {
		if matched[pair.left] || matched[pair.right] {
			continue
		}
		matched[pair.left] = true
		matched[pair.right] = true
		claimed = append(claimed, pair)
	}
	return claimed
}

func collectMatches(out *Output, claimed []*scoredPair, pass int) {
	for _, pair := range claimed {
		out.Matches = append(out.Matches, &models.MatchCandidate{
			Left:       pair.left.Deal,
			Right:      pair.right.Deal,
			Scores:     pair.scores,
			Confidence: pair.confidence,
			Pass:       pass,
		})
	}
}

func unmatchedRecords(records []*Record, matched map[*Record]bool) []*Record {
	out := make([]*Record, 0, len(records))
	for _, record := range records {
		if !matched[record] {
			out = append(out, record)
		}
	}
	return out
}

func sortedDeals(records []*Record) []*models.Deal {
	deals := make([]*models.Deal, 0, len(records))
	for _, record := range records {
		deals = append(deals, record.Deal)
	}
	sort.Slice(deals, func(i, j int) bool { return deals[i].SourceKey < deals[j].SourceKey })
	return deals
}
