package crawl

import (
	"context"
	"io"
	"time"
)

// Store is the shared job/URL queue and metrics sink. Claim operations are
// atomic at the store (exactly one concurrent claimant succeeds); the worker
// adds no mutual exclusion of its own.
type Store interface {
	// ClaimNextJob atomically transitions one queued job to claimed by
	// workerID. It returns nil when no job is available.
	ClaimNextJob(ctx context.Context, workerID string) (*Job, error)

	// RescueStaleJobs returns jobs and URL entries whose lease expired to a
	// claimable state and reports how many jobs were rescued.
	RescueStaleJobs(ctx context.Context, lease time.Duration) (int, error)

	// StartJob marks a claimed job running.
	StartJob(ctx context.Context, jobID string) error

	// Heartbeat renews the claim lease for a job held by workerID.
	Heartbeat(ctx context.Context, jobID, workerID string) error

	// SetSnapshotStage records the current pipeline stage for observability.
	SetSnapshotStage(ctx context.Context, snapshotID string, stage Stage) error

	// EnqueueURLs adds URL entries to the job's queue.
	EnqueueURLs(ctx context.Context, req EnqueueRequest) error

	// ClaimNextURL atomically claims one pending URL entry with a lock lease.
	// It returns nil when the job has no claimable entries.
	ClaimNextURL(ctx context.Context, jobID, workerID string, lock time.Duration) (*URLEntry, error)

	// MarkURLResult records the fetch outcome for a queue entry.
	MarkURLResult(ctx context.Context, outcome URLOutcome) error

	// CompleteJob performs the terminal transition to completed or failed.
	CompleteJob(ctx context.Context, jobID string, success bool, errText string) error

	// UpsertPage creates or reuses the page row for (siteID, url).
	UpsertPage(ctx context.Context, siteID, url string) (Page, error)

	// UpsertPageMetrics writes the latest signals for (snapshotID, pageID),
	// overwriting any earlier crawl of the same page within the snapshot.
	UpsertPageMetrics(ctx context.Context, snapshotID, pageID string, signals Signals, depth int) error

	// InsertActions appends remediation recommendation rows.
	InsertActions(ctx context.Context, rows []Action) error
}

// Fetcher retrieves a single URL and classifies the response. Failures are
// returned inside the result, never as an error.
type Fetcher interface {
	Fetch(ctx context.Context, url string) FetchResult
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces worker and row identities.
type IDGenerator interface {
	NewID() (string, error)
}
