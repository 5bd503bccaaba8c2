// Package crawl defines core types shared across the worker's subsystems.
package crawl

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job queue.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusClaimed   JobStatus = "claimed"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Stage labels the snapshot pipeline progress recorded for observability.
// Stages only move forward; a crash mid-job leaves the last stage as an
// accurate partial-progress marker for the rescue pass.
type Stage string

// Snapshot stages in pipeline order.
const (
	StageDiscovering Stage = "discovering"
	StageAnalyzing   Stage = "analyzing"
	StageFinalizing  Stage = "finalizing"
)

// Job is one pending crawl of a single seed URL, owned by the shared queue.
// The worker only reads it and transitions it through Store calls.
type Job struct {
	ID         string    `json:"id"`
	SiteID     string    `json:"site_id"`
	SnapshotID string    `json:"snapshot_id"`
	SeedURL    string    `json:"seed_url"`
	Status     JobStatus `json:"status"`
}

// URLEntry is one URL pending fetch within a job. Claim ownership is a lease;
// entries abandoned past the lease are returned to a claimable state by the
// rescue pass.
type URLEntry struct {
	ID    string `json:"id"`
	JobID string `json:"job_id"`
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// Page is the persisted page entity, unique per (site, normalized URL).
type Page struct {
	ID     string `json:"id"`
	SiteID string `json:"site_id"`
	URL    string `json:"url"`
}

// Signals holds the structural SEO signals derived from one document.
// It is a pure function of the document bytes and the resolved final URL,
// recomputed on every crawl and never cached.
type Signals struct {
	HasTitle           bool     `json:"has_title"`
	HasMetaDescription bool     `json:"has_meta_description"`
	HasH1              bool     `json:"has_h1"`
	Indexable          bool     `json:"indexable"`
	CanonicalOK        bool     `json:"canonical_ok"`
	SchemaTypes        []string `json:"schema_types"`
	StructuralScore    int      `json:"structural_score"`
}

// Level grades action severity and priority.
type Level string

// Supported severity/priority levels.
const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Action is a remediation recommendation row, append-only per
// (snapshot, page, action type).
type Action struct {
	SnapshotID  string   `json:"snapshot_id"`
	PageID      string   `json:"page_id"`
	Type        string   `json:"action_type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Level    `json:"severity"`
	Priority    Level    `json:"priority"`
	Steps       []string `json:"steps"`
}

// FetchResult is the structured outcome of a document fetch. Transport
// failures are carried in Err rather than raised, so the caller always
// receives a result it can record against the queue entry.
type FetchResult struct {
	OK          bool
	Status      int
	ContentType string
	// FinalURL is the post-redirect URL actually reached.
	FinalURL string
	// HTML is nil when the response was not an HTML document.
	HTML []byte
	// Err is a human-readable failure description, empty on success.
	Err string
}

// IsHTML reports whether the fetch yielded an HTML document body.
func (r FetchResult) IsHTML() bool {
	return r.OK && len(r.HTML) > 0
}

// EnqueueRequest adds URL entries to a job's queue. URLs and NormalizedURLs
// are parallel slices.
type EnqueueRequest struct {
	JobID          string
	SiteID         string
	SnapshotID     string
	URLs           []string
	NormalizedURLs []string
	Depth          int
}

// URLOutcome records the fetch result for a claimed queue entry. It is
// written unconditionally so an entry is never left claimed-but-unresolved.
type URLOutcome struct {
	QueueID      string
	Success      bool
	HTTPStatus   int
	ContentType  string
	FinalURL     string
	CanonicalURL string
	Error        string
}
