package domain

import "time"

// Sync triggers.
const (
	TriggerConnect      = "connect"
	TriggerManual       = "manual"
	TriggerAuto         = "auto"
	TriggerDateBoundary = "date_boundary"
	TriggerDisconnect   = "disconnect"
)

// Job stages, in execution order. Each transition is persisted before the
// stage body runs, so the row is always a resumable checkpoint.
const (
	StageQueued     = "queued"
	StageFetching   = "fetching"
	StageSecuring   = "securing"
	StagePersisting = "persisting"
	StageEmbedding  = "embedding"
	StageAnalyzing  = "analyzing" // calendar only
	StageComplete   = "complete"
	StageError      = "error"
)

// StageOrder maps a stage to its position; used to forbid skipping. An
// errored job re-enters at the front of the pipeline: its fetch restarts
// from the persisted page checkpoint, not from a partial stage.
var StageOrder = map[string]int{
	StageQueued:     0,
	StageError:      0,
	StageFetching:   1,
	StageSecuring:   2,
	StagePersisting: 3,
	StageEmbedding:  4,
	StageAnalyzing:  5,
	StageComplete:   6,
}

// SyncJob is one sync attempt for a (user, provider). A job that reached
// StageComplete for a given idempotency key is never re-executed; its
// stored counts are the cached outcome.
type SyncJob struct {
	ID             string `json:"id" gorm:"primaryKey"`
	UserID         string `json:"user_id" gorm:"index;not null"`
	Provider       string `json:"provider" gorm:"not null"`
	Trigger        string `json:"trigger" gorm:"not null"`
	IdempotencyKey string `json:"idempotency_key" gorm:"uniqueIndex;not null"`
	Status         string `json:"status" gorm:"index;not null"`

	// Fetch checkpoint: the page cursor to resume from inside StageFetching.
	PageToken string `json:"-"`

	ItemsFetched  int `json:"items_fetched"`
	ItemsInserted int `json:"items_inserted"`
	ItemsUpdated  int `json:"items_updated"`
	ItemsDeleted  int `json:"items_deleted"`

	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	ErrorRetryable bool       `json:"error_retryable"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (SyncJob) TableName() string {
	return "sync_jobs"
}

// Terminal reports whether the job reached a final state.
func (j *SyncJob) Terminal() bool {
	return j.Status == StageComplete || j.Status == StageError
}

// RunStats are the mutation counts of one completed run, consumed by the
// change classifier.
type RunStats struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
}

// SyncOutcome is what RunSync returns, whether freshly executed or replayed
// from a completed job's stored counts.
type SyncOutcome struct {
	JobID    string   `json:"job_id"`
	Provider string   `json:"provider"`
	Trigger  string   `json:"trigger"`
	Stats    RunStats `json:"stats"`
	Replayed bool     `json:"replayed"` // true when served from the idempotency cache
}
