// Package orchestrator implements the Job Orchestrator: the
// routing tree deciding file-vs-URL, direct-PDF-vs-HTML, and
// quick/full/ai mode, running the selected miner sequence with the
// Pagination Handler's termination rules, merging and persisting
// results, and always leaving the job in a terminal state.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"contactminer/internal/aggregate"
	"contactminer/internal/analyzer"
	"contactminer/internal/blocklist"
	"contactminer/internal/config"
	"contactminer/internal/merge"
	"contactminer/internal/miners"
	"contactminer/internal/model"
	"contactminer/internal/pagination"
	"contactminer/internal/ratelimit"
	"contactminer/internal/store"
)

// Store is the subset of *store.Store the Orchestrator depends on,
// narrowed so unit tests can substitute a fake without a live database.
type Store interface {
	MarkRunning(ctx context.Context, id uuid.UUID) error
	CompleteJob(ctx context.Context, id uuid.UUID, status model.Status, errMsg *string, stats map[string]any) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, progress, totalPages, processedPages, totalFound, totalEmailsRaw int) error
	InsertMiningResults(ctx context.Context, jobID, organizerID uuid.UUID, sourceURL string, cards []model.Card) error
	UpsertPersonsAndAffiliations(ctx context.Context, plans []aggregate.Plan) error
}

var _ Store = (*store.Store)(nil)

// fullSequence is the cheapest-to-most-capable miner order used
// by full mode: each page is tried against all three, cheapest first,
// stopping early on a TERMINAL per-miner status.
var fullSequence = []string{"http_basic", "table", "browser_list_detail"}

// Orchestrator drives one job from `pending` to a terminal status.
type Orchestrator struct {
	Store      Store
	Analyzer   *analyzer.Analyzer
	Registry   *miners.Registry
	Limiter    *ratelimit.Limiter // optional; nil disables cross-worker politeness
	Tables     blocklist.Tables
	HTTPClient *http.Client
	Cfg        *config.Config
}

// New builds an Orchestrator wired to the given collaborators.
func New(st Store, an *analyzer.Analyzer, reg *miners.Registry, limiter *ratelimit.Limiter, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		Store:      st,
		Analyzer:   an,
		Registry:   reg,
		Limiter:    limiter,
		Tables:     blocklist.Default,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Cfg:        cfg,
	}
}

// runOutcome is the terminal result of routing+mining one job, before
// it is translated into store writes by finish.
type runOutcome struct {
	status model.Status
	cards  []model.Card
	stats  map[string]any
	err    error
}

// Run drives job to a terminal state:
// for every job that enters `running`, the store eventually reflects
// status in {completed, failed, blocked}, completed_at set, and
// file_data cleared. It never returns with the job left `running`,
// including on panic or context cancellation.
func (o *Orchestrator) Run(ctx context.Context, job model.Job) {
	timeout := time.Duration(job.Config.TotalTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 8 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := o.Store.MarkRunning(ctx, job.ID); err != nil {
		return
	}
	job.Status = model.StatusRunning

	outcome := o.runSafely(runCtx, job)
	o.finish(context.WithoutCancel(ctx), job, outcome)
}

// runSafely recovers from a panic in any miner/collaborator and maps it
// to a failed outcome instead of propagating past the job boundary.
func (o *Orchestrator) runSafely(ctx context.Context, job model.Job) (outcome runOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = runOutcome{status: model.StatusFailed, err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return o.route(ctx, job)
}

// route normalizes the job type and dispatches to
// the File or URL path.
func (o *Orchestrator) route(ctx context.Context, job model.Job) runOutcome {
	switch {
	case job.Type.IsFile():
		return o.runFile(ctx, job, job.FileData, job.Input)
	case job.Type == model.JobTypeURL:
		return o.runURL(ctx, job)
	default:
		return runOutcome{status: model.StatusFailed, err: fmt.Errorf("unknown job type %q", job.Type)}
	}
}

// runURL handles URL jobs: direct-PDF detection, an explicit
// strategy override, analyzer-driven special-case routing
// (blocked/document-viewer/directory), and otherwise the quick/full/ai
// mode dispatch.
func (o *Orchestrator) runURL(ctx context.Context, job model.Job) runOutcome {
	if isPDFURL(job.Input) {
		return o.runPDFURL(ctx, job)
	}

	// A site_profile tag names a site-specific miner directly (e.g.
	// vendor_catalog); it bypasses analysis and mode selection.
	if job.SiteProfile != "" {
		if _, ok := o.Registry.Get(job.SiteProfile); ok {
			return o.runSingleMiner(ctx, job, job.SiteProfile, job.Input, "")
		}
	}

	switch job.Strategy {
	case model.StrategyHTTP:
		return o.runSingleMiner(ctx, job, "http_basic", job.Input, "")
	case model.StrategyPlaywright:
		return o.runSingleMiner(ctx, job, "browser_list_detail", job.Input, "")
	}

	if o.Analyzer != nil {
		if analysis, err := o.Analyzer.Analyze(ctx, job.Input); err == nil {
			switch analysis.PageType {
			case analyzer.PageBlocked, analyzer.PageDocumentViewer, analyzer.PageDirectory:
				return o.runSingleMiner(ctx, job, string(analysis.Recommendation.Miner), job.Input, "")
			}
		}
	}

	mode := job.Config.MiningMode
	if mode == "" {
		mode = model.ModeAI
	}
	switch mode {
	case model.ModeQuick:
		return o.runQuick(ctx, job)
	case model.ModeFull:
		return o.runFull(ctx, job)
	default:
		return o.runAI(ctx, job)
	}
}

// isPDFURL reports whether targetURL's path ends in .pdf.
func isPDFURL(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(strings.SplitN(targetURL, "?", 2)[0]), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

// runPDFURL downloads a direct PDF link to a temp file, wraps it as a
// synthetic file job, and routes through the File path. The temp file
// is removed on every exit path, success or error.
func (o *Orchestrator) runPDFURL(ctx context.Context, job model.Job) runOutcome {
	data, err := o.download(ctx, job.Input)
	if err != nil {
		return runOutcome{status: model.StatusFailed, err: fmt.Errorf("download pdf: %w", err)}
	}

	tmp, err := os.CreateTemp("", "contactminer-*.pdf")
	if err != nil {
		return runOutcome{status: model.StatusFailed, err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return runOutcome{status: model.StatusFailed, err: err}
	}
	tmp.Close()

	fileJob := job
	fileJob.Type = model.JobTypePDF
	return o.runFile(ctx, fileJob, data, filepath.Base(tmpPath))
}

func (o *Orchestrator) download(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(io.LimitReader(resp.Body, 100<<20)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// runFile is the file orchestrator: dispatch to the File miner (which
// itself runs the multi-method extraction chain), merge/normalize the
// resulting cards, drop any missing an email, and flag a quality
// decision.
func (o *Orchestrator) runFile(ctx context.Context, job model.Job, data []byte, fileName string) runOutcome {
	miner, ok := o.Registry.Get("file")
	if !ok {
		return runOutcome{status: model.StatusFailed, err: errors.New("file miner not available")}
	}

	result, err := miner.Mine(ctx, job, miners.Input{FileBytes: data, FileName: fileName})
	if err != nil {
		return runOutcome{status: model.StatusFailed, err: err}
	}
	if result.Status == model.StatusError {
		return runOutcome{status: model.StatusFailed, err: errors.New(result.Meta.Error)}
	}

	merged := merge.Merge(result.Contacts, o.Tables)
	merge.SortByConfidence(merged)

	validated := make([]model.Card, 0, len(merged))
	dropped := 0
	lowQuality := 0
	for _, c := range merged {
		if c.PrimaryEmail() == "" {
			dropped++
			continue
		}
		if c.Confidence < 40 {
			lowQuality++
		}
		validated = append(validated, c)
	}

	// A batch is flagged for retry when more than half of its
	// validated rows score below the low-confidence threshold.
	decision := "ACCEPT"
	if len(validated) > 0 && lowQuality*2 > len(validated) {
		decision = "RETRY"
	}

	return runOutcome{
		status: model.StatusCompleted,
		cards:  validated,
		stats: map[string]any{
			"extraction_method": result.Meta.Notes,
			"dropped_no_email":  dropped,
			"decision":          decision,
		},
	}
}

// runSingleMiner runs one named miner directly against pageURL/html
// with no pagination loop, used for the analyzer-driven special cases
// and for explicit http/playwright strategy overrides.
func (o *Orchestrator) runSingleMiner(ctx context.Context, job model.Job, name, pageURL, html string) runOutcome {
	miner, ok := o.Registry.Get(name)
	if !ok {
		return runOutcome{status: model.StatusFailed, err: fmt.Errorf("%s miner not available", name)}
	}

	result, err := miner.Mine(ctx, job, miners.Input{URL: pageURL, PageHTML: html})
	if err != nil {
		if errors.Is(err, miners.ErrBlockDetected) {
			return runOutcome{status: model.StatusBlocked, err: err}
		}
		return runOutcome{status: model.StatusFailed, err: err}
	}

	cards := merge.Merge(result.Contacts, o.Tables)
	status := model.StatusCompleted
	if result.Status == model.StatusBlockedResult && len(cards) == 0 {
		status = model.StatusBlocked
	}
	return runOutcome{status: status, cards: cards, stats: map[string]any{"miner": name}}
}

// runQuick is mode=quick: HTTP Basic only, no pagination.
func (o *Orchestrator) runQuick(ctx context.Context, job model.Job) runOutcome {
	return o.runSingleMiner(ctx, job, "http_basic", job.Input, "")
}

// runFull is mode=full: HTTP Basic, Table, and Browser Detail miners
// per page, paginated.
func (o *Orchestrator) runFull(ctx context.Context, job model.Job) runOutcome {
	return o.paginatedRun(ctx, job, fullSequence)
}

// runAI is mode=ai: the AI miner, paginated.
func (o *Orchestrator) runAI(ctx context.Context, job model.Job) runOutcome {
	return o.paginatedRun(ctx, job, []string{"ai"})
}

// paginatedRun drives the Pagination Handler loop shared by full and
// ai mode: it enumerates page URLs, runs the given miner sequence on
// each, and applies the termination rules (three consecutive empty
// pages, or a repeated content hash) plus the polite delay.
func (o *Orchestrator) paginatedRun(ctx context.Context, job model.Job, sequence []string) runOutcome {
	base := job.Input

	delay := time.Duration(job.Config.ListPageDelayMs) * time.Millisecond
	if delay < 500*time.Millisecond {
		delay = 2 * time.Second
	}

	maxPages := job.Config.MaxPages
	if maxPages <= 0 {
		maxPages = pagination.DefaultMaxPages
	}

	fetch := func(u string) (string, error) {
		html, _, _, err := o.Analyzer.Fetch(ctx, u)
		return html, err
	}

	page1URL := pagination.BuildPageURL(base, 1)
	page1HTML, httpCode, _, err := o.Analyzer.Fetch(ctx, page1URL)
	if err != nil {
		return runOutcome{status: model.StatusFailed, err: fmt.Errorf("fetch page 1: %w", err)}
	}
	if isBlockedCode(httpCode) {
		return runOutcome{status: model.StatusBlocked, err: fmt.Errorf("blocked: http %d", httpCode)}
	}

	urls, total, _, err := pagination.GeneratePageURLs(base, pagination.GenerateOptions{
		MaxPages:   maxPages,
		Page1HTML:  page1HTML,
		ForceCount: job.Config.ForcePageCount,
	}, fetch)
	if err != nil {
		return runOutcome{status: model.StatusFailed, err: err}
	}

	var allCards []model.Card
	seenHashes := make(map[string]bool)
	consecutiveEmpty := 0
	processedPages := 0

	for i, pageURL := range urls {
		select {
		case <-ctx.Done():
			// On timeout, keep whatever has been mined so far
			// rather than fail the whole job.
			merged := merge.Merge(allCards, o.Tables)
			return runOutcome{
				status: model.StatusCompleted,
				cards:  merged,
				stats:  map[string]any{"pages_processed": processedPages, "pages_detected": total, "timed_out": true},
			}
		default:
		}

		if err := o.politeDelay(ctx, i, pageURL, delay); err != nil {
			break
		}

		html := page1HTML
		code := httpCode
		if i > 0 {
			var fetchErr error
			html, code, _, fetchErr = o.Analyzer.Fetch(ctx, pageURL)
			if fetchErr != nil {
				consecutiveEmpty++
				if consecutiveEmpty >= 3 {
					break
				}
				continue
			}
		}
		if isBlockedCode(code) {
			return runOutcome{status: model.StatusBlocked, err: fmt.Errorf("blocked: http %d on page %d", code, i+1)}
		}

		pageCards, blocked, blockErr := o.runSequence(ctx, job, sequence, pageURL, html)
		if blocked {
			return runOutcome{status: model.StatusBlocked, err: blockErr}
		}
		processedPages++

		if len(pageCards) == 0 {
			consecutiveEmpty++
		} else {
			consecutiveEmpty = 0
		}
		if consecutiveEmpty >= 3 {
			break
		}

		if hash := pagination.CreateContentHash(pageCards); hash != "" {
			if seenHashes[hash] {
				break
			}
			seenHashes[hash] = true
		}

		allCards = append(allCards, pageCards...)
	}

	merged := merge.Merge(allCards, o.Tables)
	return runOutcome{
		status: model.StatusCompleted,
		cards:  merged,
		stats:  map[string]any{"pages_processed": processedPages, "pages_detected": total},
	}
}

func isBlockedCode(code int) bool {
	return code == 401 || code == 403 || code == 429
}

// politeDelay enforces the between-pages politeness delay either via
// the cross-worker Redis limiter (when configured) or a local sleep,
// honoring ctx cancellation either way.
func (o *Orchestrator) politeDelay(ctx context.Context, pageIndex int, pageURL string, delay time.Duration) error {
	if o.Limiter != nil {
		if host := hostOf(pageURL); host != "" {
			return o.Limiter.Wait(ctx, host)
		}
		return nil
	}
	if pageIndex == 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// runSequence runs the given miner names against one page in order,
// stopping early on a TERMINAL per-miner status (cheapest hit wins)
// and short-circuiting the whole job the moment any miner reports
// BLOCK_DETECTED.
func (o *Orchestrator) runSequence(ctx context.Context, job model.Job, names []string, pageURL, html string) (cards []model.Card, blocked bool, err error) {
	var collected []model.Card
	for _, name := range names {
		miner, ok := o.Registry.Get(name)
		if !ok {
			continue
		}
		result, mineErr := miner.Mine(ctx, job, miners.Input{URL: pageURL, PageHTML: html})
		if mineErr != nil {
			if errors.Is(mineErr, miners.ErrBlockDetected) {
				return nil, true, mineErr
			}
			continue // ERROR is a continue status, try the next miner
		}
		collected = append(collected, result.Contacts...)
		if result.Status.Terminal() {
			break
		}
	}
	return merge.Merge(collected, o.Tables), false, nil
}

// finish persists mining results, runs the Aggregation Trigger unless
// shadow mode is disabled, and completes the job with a terminal
// status. It is the single exit path from Run, so every
// route above funnels through it and the terminal-status invariant
// holds regardless of which branch produced outcome.
func (o *Orchestrator) finish(ctx context.Context, job model.Job, outcome runOutcome) {
	stats := outcome.stats
	if stats == nil {
		stats = map[string]any{}
	}

	var errMsg *string
	if outcome.err != nil {
		msg := outcome.err.Error()
		errMsg = &msg
	}

	status := outcome.status
	if status == "" {
		status = model.StatusFailed
	}

	totalEmailsRaw := 0
	for _, c := range outcome.cards {
		totalEmailsRaw += len(c.Emails)
	}

	if len(outcome.cards) > 0 {
		if err := o.Store.InsertMiningResults(ctx, job.ID, job.OrganizerID, job.Input, outcome.cards); err != nil {
			stats["mining_results_error"] = err.Error()
		}
	}

	prospectsCreated := 0
	if status == model.StatusCompleted && (o.Cfg == nil || !o.Cfg.DisableShadowMode) && job.OrganizerID != uuid.Nil {
		created, aggErrs := o.runAggregation(ctx, job, outcome.cards)
		prospectsCreated = created
		if aggErrs > 0 {
			stats["aggregate_errors"] = aggErrs
		}
	}
	stats["total_prospects_created"] = prospectsCreated

	processedPages := job.ProcessedPages
	totalPages := job.TotalPages
	if v, ok := stats["pages_processed"].(int); ok {
		processedPages = v
	}
	if v, ok := stats["pages_detected"].(int); ok {
		totalPages = v
	}

	_ = o.Store.UpdateJobProgress(ctx, job.ID, 100, totalPages, processedPages, len(outcome.cards), totalEmailsRaw)
	_ = o.Store.CompleteJob(ctx, job.ID, status, errMsg, stats)
}

// runAggregation is the Aggregation Trigger: it resolves each
// candidate into a person/affiliation Plan and executes the UPSERT
// batches, continuing past a failed batch (its rows are simply not
// aggregated; mining_results already has them).
func (o *Orchestrator) runAggregation(ctx context.Context, job model.Job, cards []model.Card) (created int, errCount int) {
	orgID := job.OrganizerID.String()
	jobID := job.ID.String()

	sourceType := model.SourceMining
	if job.Type.IsFile() {
		sourceType = model.SourceFile
	}

	var plans []aggregate.Plan
	for _, c := range cards {
		plan, ok := aggregate.BuildPlan(orgID, c, sourceType, job.Input, &jobID, o.Tables)
		if !ok {
			continue
		}
		plans = append(plans, plan)
	}

	for _, batch := range aggregate.Batches(plans) {
		if err := o.Store.UpsertPersonsAndAffiliations(ctx, batch); err != nil {
			errCount++
			continue
		}
		created += len(batch)
	}
	return created, errCount
}
