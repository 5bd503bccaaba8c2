// Package postgres provides the Postgres-backed crawl.Store implementation.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagepulse/crawlworker/internal/crawl"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// dbPool is the subset of pgxpool.Pool the store uses. Narrowed so tests can
// substitute pgxmock.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
	Close()
}

// Store implements crawl.Store on Postgres. Claim atomicity relies on
// FOR UPDATE SKIP LOCKED, so many workers can poll the same tables without
// coordinating.
type Store struct {
	pool dbPool
}

// New connects a pool using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// InitSchema applies the embedded schema. Safe to run repeatedly.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const claimJobSQL = `
UPDATE crawl_jobs
SET status = 'claimed', claimed_by = $1, claimed_at = now(), heartbeat_at = now()
WHERE id = (
	SELECT id FROM crawl_jobs
	WHERE status = 'queued'
	ORDER BY created_at
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING id, site_id, snapshot_id, seed_url, status`

// ClaimNextJob claims the oldest queued job. SKIP LOCKED guarantees at most
// one concurrent claimant wins each row.
func (s *Store) ClaimNextJob(ctx context.Context, workerID string) (*crawl.Job, error) {
	var job crawl.Job
	err := s.pool.QueryRow(ctx, claimJobSQL, workerID).Scan(
		&job.ID,
		&job.SiteID,
		&job.SnapshotID,
		&job.SeedURL,
		&job.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return &job, nil
}

const rescueJobsSQL = `
UPDATE crawl_jobs
SET status = 'queued', claimed_by = NULL, claimed_at = NULL, heartbeat_at = NULL
WHERE status IN ('claimed', 'running')
  AND heartbeat_at < now() - make_interval(secs => $1)`

const rescueQueueSQL = `
UPDATE crawl_queue
SET status = 'pending', claimed_by = NULL, claimed_at = NULL, lease_expires_at = NULL
WHERE status = 'claimed' AND lease_expires_at < now()`

// RescueStaleJobs requeues jobs whose heartbeat lapsed past the lease, and
// URL entries whose claim lock expired.
func (s *Store) RescueStaleJobs(ctx context.Context, lease time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, rescueJobsSQL, lease.Seconds())
	if err != nil {
		return 0, fmt.Errorf("rescue stale jobs: %w", err)
	}
	if _, err := s.pool.Exec(ctx, rescueQueueSQL); err != nil {
		return 0, fmt.Errorf("rescue stale url entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const startJobSQL = `
UPDATE crawl_jobs
SET status = 'running', started_at = COALESCE(started_at, now())
WHERE id = $1`

// StartJob marks a claimed job running.
func (s *Store) StartJob(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, startJobSQL, jobID); err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	return nil
}

const heartbeatSQL = `
UPDATE crawl_jobs
SET heartbeat_at = now()
WHERE id = $1 AND claimed_by = $2`

// Heartbeat renews the claim lease. Renewal is guarded by claimed_by so a
// worker that lost its claim to the rescue pass cannot resurrect it.
func (s *Store) Heartbeat(ctx context.Context, jobID, workerID string) error {
	tag, err := s.pool.Exec(ctx, heartbeatSQL, jobID, workerID)
	if err != nil {
		return fmt.Errorf("heartbeat job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is no longer held by %s", jobID, workerID)
	}
	return nil
}

const setStageSQL = `
UPDATE snapshots
SET stage = $2, updated_at = now()
WHERE id = $1`

// SetSnapshotStage records pipeline progress on the snapshot row.
func (s *Store) SetSnapshotStage(ctx context.Context, snapshotID string, stage crawl.Stage) error {
	if _, err := s.pool.Exec(ctx, setStageSQL, snapshotID, string(stage)); err != nil {
		return fmt.Errorf("set snapshot stage: %w", err)
	}
	return nil
}

const enqueueURLSQL = `
INSERT INTO crawl_queue (job_id, site_id, snapshot_id, url, normalized_url, depth, status)
VALUES ($1, $2, $3, $4, $5, $6, 'pending')
ON CONFLICT (job_id, normalized_url) DO NOTHING`

// EnqueueURLs batch-inserts URL entries. Duplicate normalized URLs within a
// job are silently dropped by the unique constraint.
func (s *Store) EnqueueURLs(ctx context.Context, req crawl.EnqueueRequest) error {
	if len(req.URLs) != len(req.NormalizedURLs) {
		return fmt.Errorf("enqueue urls: %d urls but %d normalized", len(req.URLs), len(req.NormalizedURLs))
	}
	if len(req.URLs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, raw := range req.URLs {
		batch.Queue(enqueueURLSQL, req.JobID, req.SiteID, req.SnapshotID, raw, req.NormalizedURLs[i], req.Depth)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range req.URLs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("enqueue urls: %w", err)
		}
	}
	return nil
}

const claimURLSQL = `
UPDATE crawl_queue
SET status = 'claimed', claimed_by = $2, claimed_at = now(),
    lease_expires_at = now() + make_interval(secs => $3)
WHERE id = (
	SELECT id FROM crawl_queue
	WHERE job_id = $1 AND status = 'pending'
	ORDER BY depth, created_at
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING id, job_id, url, depth`

// ClaimNextURL claims one pending URL entry of the job with a lock lease.
func (s *Store) ClaimNextURL(ctx context.Context, jobID, workerID string, lock time.Duration) (*crawl.URLEntry, error) {
	var entry crawl.URLEntry
	err := s.pool.QueryRow(ctx, claimURLSQL, jobID, workerID, lock.Seconds()).Scan(
		&entry.ID,
		&entry.JobID,
		&entry.URL,
		&entry.Depth,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next url: %w", err)
	}
	return &entry, nil
}

const markURLSQL = `
UPDATE crawl_queue
SET status = CASE WHEN $2 THEN 'done' ELSE 'failed' END,
    http_status = $3, content_type = NULLIF($4, ''), final_url = NULLIF($5, ''),
    canonical_url = NULLIF($6, ''), error_message = NULLIF($7, ''),
    finished_at = now()
WHERE id = $1`

// MarkURLResult records the fetch outcome against the queue entry.
func (s *Store) MarkURLResult(ctx context.Context, outcome crawl.URLOutcome) error {
	_, err := s.pool.Exec(ctx, markURLSQL,
		outcome.QueueID,
		outcome.Success,
		outcome.HTTPStatus,
		outcome.ContentType,
		outcome.FinalURL,
		outcome.CanonicalURL,
		outcome.Error,
	)
	if err != nil {
		return fmt.Errorf("mark url result: %w", err)
	}
	return nil
}

const completeJobSQL = `
UPDATE crawl_jobs
SET status = CASE WHEN $2 THEN 'completed' ELSE 'failed' END,
    error_message = NULLIF($3, ''), finished_at = now()
WHERE id = $1`

// CompleteJob performs the terminal transition.
func (s *Store) CompleteJob(ctx context.Context, jobID string, success bool, errText string) error {
	if _, err := s.pool.Exec(ctx, completeJobSQL, jobID, success, errText); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

const upsertPageSQL = `
INSERT INTO pages (site_id, url)
VALUES ($1, $2)
ON CONFLICT (site_id, url) DO UPDATE SET url = EXCLUDED.url
RETURNING id, site_id, url`

// UpsertPage creates or reuses the page row keyed by (site, normalized URL).
// The no-op DO UPDATE makes RETURNING yield the existing row on conflict.
func (s *Store) UpsertPage(ctx context.Context, siteID, url string) (crawl.Page, error) {
	var page crawl.Page
	err := s.pool.QueryRow(ctx, upsertPageSQL, siteID, url).Scan(&page.ID, &page.SiteID, &page.URL)
	if err != nil {
		return crawl.Page{}, fmt.Errorf("upsert page: %w", err)
	}
	return page, nil
}

const upsertMetricsSQL = `
INSERT INTO page_metrics (
	snapshot_id, page_id,
	has_title, has_meta_description, has_h1, indexable, canonical_ok,
	schema_types, structural_score, depth, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
ON CONFLICT (snapshot_id, page_id) DO UPDATE SET
	has_title = EXCLUDED.has_title,
	has_meta_description = EXCLUDED.has_meta_description,
	has_h1 = EXCLUDED.has_h1,
	indexable = EXCLUDED.indexable,
	canonical_ok = EXCLUDED.canonical_ok,
	schema_types = EXCLUDED.schema_types,
	structural_score = EXCLUDED.structural_score,
	depth = EXCLUDED.depth,
	updated_at = now()`

// UpsertPageMetrics writes the latest signals for the page within the
// snapshot, overwriting any earlier crawl.
func (s *Store) UpsertPageMetrics(ctx context.Context, snapshotID, pageID string, signals crawl.Signals, depth int) error {
	types := signals.SchemaTypes
	if types == nil {
		types = []string{}
	}
	typesJSON, err := json.Marshal(types)
	if err != nil {
		return fmt.Errorf("marshal schema types: %w", err)
	}
	_, err = s.pool.Exec(ctx, upsertMetricsSQL,
		snapshotID,
		pageID,
		signals.HasTitle,
		signals.HasMetaDescription,
		signals.HasH1,
		signals.Indexable,
		signals.CanonicalOK,
		typesJSON,
		signals.StructuralScore,
		depth,
	)
	if err != nil {
		return fmt.Errorf("upsert page metrics: %w", err)
	}
	return nil
}

const insertActionSQL = `
INSERT INTO actions (snapshot_id, page_id, action_type, title, description, severity, priority, steps)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// InsertActions appends remediation recommendation rows in one batch.
func (s *Store) InsertActions(ctx context.Context, rows []crawl.Action) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, row := range rows {
		stepsJSON, err := json.Marshal(row.Steps)
		if err != nil {
			return fmt.Errorf("marshal action steps: %w", err)
		}
		batch.Queue(insertActionSQL,
			row.SnapshotID,
			row.PageID,
			row.Type,
			row.Title,
			row.Description,
			string(row.Severity),
			string(row.Priority),
			stepsJSON,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert actions: %w", err)
		}
	}
	return nil
}
