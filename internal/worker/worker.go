// Package worker implements the crawl job lifecycle state machine.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagepulse/crawlworker/internal/actions"
	"github.com/pagepulse/crawlworker/internal/crawl"
	"github.com/pagepulse/crawlworker/internal/extract"
	"github.com/pagepulse/crawlworker/internal/hash/sha256"
	"github.com/pagepulse/crawlworker/internal/metrics"
)

// State names the outcome of one loop iteration and decides the delay before
// the next one.
type State int

// Loop states.
const (
	// StateRunning means a job was claimed and driven to a terminal status;
	// the loop claims again immediately.
	StateRunning State = iota
	// StateIdle means the queue had no claimable job; the loop sleeps the
	// idle poll interval. This is not an error.
	StateIdle
	// StateBackoff means an unexpected error escaped job processing; the loop
	// sleeps the fixed backoff before continuing.
	StateBackoff
)

// Defaults applied when Config leaves a knob unset.
const (
	defaultIdleDelay    = 2 * time.Second
	defaultBackoffDelay = 3 * time.Second
	defaultRescueEvery  = 30
	defaultJobLease     = 15 * time.Minute
	defaultURLLock      = 10 * time.Minute
)

// Config controls Worker behavior.
type Config struct {
	// WorkerID uniquely identifies this process to the shared queue.
	WorkerID string
	// Topic receives completion events; empty disables publishing.
	Topic string
	// ArchivePrefix prefixes raw HTML archive object paths.
	ArchivePrefix string
	// IdleDelay is the sleep between claim attempts when the queue is empty.
	IdleDelay time.Duration
	// BackoffDelay is the sleep after an unexpected per-job error.
	BackoffDelay time.Duration
	// RescueEvery triggers the stale-job rescue pass every N iterations.
	RescueEvery int
	// JobLease is the staleness bound handed to the rescue pass.
	JobLease time.Duration
	// URLLock is the lease requested when claiming a URL entry.
	URLLock time.Duration
	// HeartbeatInterval rate-limits lease renewals.
	HeartbeatInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.IdleDelay <= 0 {
		c.IdleDelay = defaultIdleDelay
	}
	if c.BackoffDelay <= 0 {
		c.BackoffDelay = defaultBackoffDelay
	}
	if c.RescueEvery <= 0 {
		c.RescueEvery = defaultRescueEvery
	}
	if c.JobLease <= 0 {
		c.JobLease = defaultJobLease
	}
	if c.URLLock <= 0 {
		c.URLLock = defaultURLLock
	}
}

// Worker claims jobs from the shared queue and drives each one through the
// fixed stage sequence. One worker runs one job at a time; concurrency comes
// from independent worker processes racing on the same queue.
type Worker struct {
	store     crawl.Store
	fetcher   crawl.Fetcher
	clock     crawl.Clock
	publisher crawl.Publisher
	archive   crawl.BlobStore
	hb        *Heartbeat
	cfg       Config
	logger    *zap.Logger

	// sleep is injectable so tests can drive transitions without delays.
	sleep func(ctx context.Context, d time.Duration)

	iterations int
}

// New constructs a Worker. publisher and archive may be nil; the
// corresponding best-effort outputs are then skipped.
func New(
	store crawl.Store,
	fetcher crawl.Fetcher,
	clock crawl.Clock,
	publisher crawl.Publisher,
	archive crawl.BlobStore,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	cfg.applyDefaults()
	return &Worker{
		store:     store,
		fetcher:   fetcher,
		clock:     clock,
		publisher: publisher,
		archive:   archive,
		hb:        NewHeartbeat(store, clock, logger, cfg.WorkerID, cfg.HeartbeatInterval),
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// Run blocks, claiming and processing jobs until the context finishes.
// Per-job failures never terminate the loop.
func (w *Worker) Run(ctx context.Context) {
	for ctx.Err() == nil {
		switch w.runOnce(ctx) {
		case StateIdle:
			w.sleep(ctx, w.cfg.IdleDelay)
		case StateBackoff:
			w.sleep(ctx, w.cfg.BackoffDelay)
		case StateRunning:
			// Claim again immediately.
		}
	}
}

// runOnce performs one iteration of the outer loop and reports the state the
// loop should transition to.
func (w *Worker) runOnce(ctx context.Context) State {
	w.iterations++
	if w.iterations%w.cfg.RescueEvery == 0 {
		w.rescueStaleJobs(ctx)
	}

	job, err := w.store.ClaimNextJob(ctx, w.cfg.WorkerID)
	if err != nil {
		w.logger.Error("claim next job failed", zap.Error(err))
		return StateBackoff
	}
	if job == nil {
		return StateIdle
	}

	w.hb.Reset()
	w.hb.Maybe(ctx, job.ID)
	w.logger.Info("job claimed",
		zap.String("job_id", job.ID),
		zap.String("snapshot_id", job.SnapshotID),
		zap.String("seed_url", job.SeedURL),
	)

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Error("job processing failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		// Best effort: record the failure so the job does not sit claimed
		// until its lease expires. If this write fails too, rescue picks the
		// job up.
		if cerr := w.store.CompleteJob(ctx, job.ID, false, err.Error()); cerr != nil {
			w.logger.Warn("job left for rescue", zap.String("job_id", job.ID), zap.Error(cerr))
		} else {
			metrics.ObserveJob(string(crawl.JobStatusFailed))
		}
		return StateBackoff
	}
	return StateRunning
}

func (w *Worker) rescueStaleJobs(ctx context.Context) {
	n, err := w.store.RescueStaleJobs(ctx, w.cfg.JobLease)
	if err != nil {
		w.logger.Warn("stale job rescue failed", zap.Error(err))
		return
	}
	if n > 0 {
		w.logger.Info("rescued stale jobs", zap.Int("count", n))
		metrics.AddRescuedJobs(n)
	}
}

// processJob drives one claimed job through its stages. Returned errors are
// the fatal kind: lifecycle or persistence writes that failed. Fetch failures
// terminate the job via its own failed status and return nil.
func (w *Worker) processJob(ctx context.Context, job *crawl.Job) error {
	if err := w.store.StartJob(ctx, job.ID); err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	w.hb.Maybe(ctx, job.ID)

	if err := w.store.SetSnapshotStage(ctx, job.SnapshotID, crawl.StageDiscovering); err != nil {
		return fmt.Errorf("set stage %s: %w", crawl.StageDiscovering, err)
	}
	w.hb.Maybe(ctx, job.ID)

	normalized, err := crawl.NormalizeURL(job.SeedURL)
	if err != nil {
		// An unusable seed fails the job, not the worker.
		return w.finishJob(ctx, job, false, fmt.Sprintf("invalid seed url: %v", err), nil)
	}

	if err := w.store.EnqueueURLs(ctx, crawl.EnqueueRequest{
		JobID:          job.ID,
		SiteID:         job.SiteID,
		SnapshotID:     job.SnapshotID,
		URLs:           []string{job.SeedURL},
		NormalizedURLs: []string{normalized},
		Depth:          0,
	}); err != nil {
		return fmt.Errorf("enqueue seed url: %w", err)
	}
	w.hb.Maybe(ctx, job.ID)

	if err := w.store.SetSnapshotStage(ctx, job.SnapshotID, crawl.StageAnalyzing); err != nil {
		return fmt.Errorf("set stage %s: %w", crawl.StageAnalyzing, err)
	}
	w.hb.Maybe(ctx, job.ID)

	entry, err := w.store.ClaimNextURL(ctx, job.ID, w.cfg.WorkerID, w.cfg.URLLock)
	if err != nil {
		return fmt.Errorf("claim next url: %w", err)
	}
	w.hb.Maybe(ctx, job.ID)
	if entry == nil {
		// Empty crawl is not an error.
		return w.finishJob(ctx, job, true, "", nil)
	}

	fetchStart := w.clock.Now()
	res := w.fetcher.Fetch(ctx, entry.URL)
	metrics.ObserveFetch(res.Status, w.clock.Now().Sub(fetchStart))
	w.hb.Maybe(ctx, job.ID)

	if !res.OK {
		if err := w.markURL(ctx, entry, res, ""); err != nil {
			return err
		}
		w.hb.Maybe(ctx, job.ID)
		// Do not retry the same URL within this job.
		return w.finishJob(ctx, job, false, res.Err, nil)
	}

	if !res.IsHTML() {
		if err := w.markURL(ctx, entry, res, ""); err != nil {
			return err
		}
		w.hb.Maybe(ctx, job.ID)
		w.logger.Info("non-html document skipped",
			zap.String("job_id", job.ID),
			zap.String("url", entry.URL),
			zap.String("content_type", res.ContentType),
		)
		if err := w.store.SetSnapshotStage(ctx, job.SnapshotID, crawl.StageFinalizing); err != nil {
			return fmt.Errorf("set stage %s: %w", crawl.StageFinalizing, err)
		}
		w.hb.Maybe(ctx, job.ID)
		return w.finishJob(ctx, job, true, "", nil)
	}

	ex := extract.Extract(res.HTML, res.FinalURL)
	if err := w.markURL(ctx, entry, res, ex.CanonicalURL); err != nil {
		return err
	}
	w.hb.Maybe(ctx, job.ID)

	page, err := w.store.UpsertPage(ctx, job.SiteID, pageURL(res.FinalURL))
	if err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	w.hb.Maybe(ctx, job.ID)

	if err := w.store.UpsertPageMetrics(ctx, job.SnapshotID, page.ID, ex.Signals, entry.Depth); err != nil {
		return fmt.Errorf("upsert page metrics: %w", err)
	}
	w.hb.Maybe(ctx, job.ID)
	metrics.ObserveScore(ex.Signals.StructuralScore)

	w.insertActions(ctx, job, page, ex.Signals)
	w.archiveHTML(ctx, job, page, res.HTML)

	if err := w.store.SetSnapshotStage(ctx, job.SnapshotID, crawl.StageFinalizing); err != nil {
		return fmt.Errorf("set stage %s: %w", crawl.StageFinalizing, err)
	}
	w.hb.Maybe(ctx, job.ID)

	return w.finishJob(ctx, job, true, "", &ex.Signals)
}

// markURL records the fetch outcome against the queue entry unconditionally
// so the entry never stays claimed-but-unresolved.
func (w *Worker) markURL(ctx context.Context, entry *crawl.URLEntry, res crawl.FetchResult, canonical string) error {
	if err := w.store.MarkURLResult(ctx, crawl.URLOutcome{
		QueueID:      entry.ID,
		Success:      res.OK,
		HTTPStatus:   res.Status,
		ContentType:  res.ContentType,
		FinalURL:     res.FinalURL,
		CanonicalURL: canonical,
		Error:        res.Err,
	}); err != nil {
		return fmt.Errorf("mark url result: %w", err)
	}
	return nil
}

// finishJob performs the terminal transition exactly once and emits the
// best-effort completion event.
func (w *Worker) finishJob(ctx context.Context, job *crawl.Job, success bool, errText string, signals *crawl.Signals) error {
	if err := w.store.CompleteJob(ctx, job.ID, success, errText); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	status := crawl.JobStatusCompleted
	if !success {
		status = crawl.JobStatusFailed
	}
	metrics.ObserveJob(string(status))
	w.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(status)),
		zap.String("error", errText),
	)

	w.publishCompletion(ctx, job, status, errText, signals)
	return nil
}

// insertActions persists remediation recommendations. Failures are logged and
// swallowed: recommendations are a best-effort secondary output.
func (w *Worker) insertActions(ctx context.Context, job *crawl.Job, page crawl.Page, signals crawl.Signals) {
	rows := actions.Generate(signals)
	if len(rows) == 0 {
		return
	}
	for i := range rows {
		rows[i].SnapshotID = job.SnapshotID
		rows[i].PageID = page.ID
	}
	if err := w.store.InsertActions(ctx, rows); err != nil {
		w.logger.Warn("insert actions failed",
			zap.String("job_id", job.ID),
			zap.String("page_id", page.ID),
			zap.Error(err),
		)
	}
}

// archiveHTML stores the raw document as crawl evidence. Best effort.
func (w *Worker) archiveHTML(ctx context.Context, job *crawl.Job, page crawl.Page, html []byte) {
	if w.archive == nil {
		return
	}
	path := fmt.Sprintf("%s/%s.html", job.SnapshotID, page.ID)
	if prefix := strings.Trim(w.cfg.ArchivePrefix, "/"); prefix != "" {
		path = prefix + "/" + path
	}
	uri, err := w.archive.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader(html))
	if err != nil {
		w.logger.Warn("archive html failed",
			zap.String("job_id", job.ID),
			zap.String("page_id", page.ID),
			zap.Error(err),
		)
		return
	}
	w.logger.Debug("html archived",
		zap.String("job_id", job.ID),
		zap.String("uri", uri),
		zap.String("sha256", sha256.Sum(html)),
	)
}

// publishCompletion emits the job completion event. Best effort.
func (w *Worker) publishCompletion(ctx context.Context, job *crawl.Job, status crawl.JobStatus, errText string, signals *crawl.Signals) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"job_id":      job.ID,
		"site_id":     job.SiteID,
		"snapshot_id": job.SnapshotID,
		"status":      string(status),
		"error":       errText,
		"timestamp":   w.clock.Now().Format(time.RFC3339),
	}
	if signals != nil {
		payload["structural_score"] = signals.StructuralScore
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Warn("publish completion failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

// pageURL normalizes the final URL for page identity; when normalization is
// impossible the raw final URL is stored rather than losing the page.
func pageURL(finalURL string) string {
	normalized, err := crawl.NormalizeURL(finalURL)
	if err != nil {
		return finalURL
	}
	return normalized
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
