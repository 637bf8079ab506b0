package models

import "time"

// JobStatus is the lifecycle state of a sync job
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// JobKind distinguishes live syncs from reprocess runs
type JobKind string

const (
	JobSync      JobKind = "sync"
	JobReprocess JobKind = "reprocess"
)

// Terminal reports whether no further transitions are allowed
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether s -> next is a forward lifecycle step
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobProcessing || next == JobFailed
	case JobProcessing:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

// SyncJob tracks one sync or reprocess run
type SyncJob struct {
	ID              string     `db:"id"`
	UserID          int64      `db:"user_id"`
	Kind            JobKind    `db:"kind"`
	Category        string     `db:"category"`
	Query           string     `db:"query"`
	Status          JobStatus  `db:"status"`
	TotalEmails     int        `db:"total_emails"`
	ProcessedEmails int        `db:"processed_emails"`
	NewEmails       int        `db:"new_emails"`
	Transactions    int        `db:"transactions"`
	Statements      int        `db:"statements"`
	ErrorMessage    *string    `db:"error_message"`
	StartedAt       time.Time  `db:"started_at"`
	CompletedAt     *time.Time `db:"completed_at"`
}

// JobProgress is a counter delta applied to a running job
type JobProgress struct {
	Processed    int
	New          int
	Transactions int
	Statements   int
}

// JobStatusView is the status payload returned to callers
type JobStatusView struct {
	JobID           string    `json:"jobId"`
	UserID          int64     `json:"userId"`
	Kind            JobKind   `json:"kind"`
	Status          JobStatus `json:"status"`
	TotalEmails     int       `json:"totalEmails"`
	ProcessedEmails int       `json:"processedEmails"`
	NewEmails       int       `json:"newEmails"`
	Transactions    int       `json:"transactions"`
	Statements      int       `json:"statements"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
}

// View converts a job into its status payload
func (j *SyncJob) View() JobStatusView {
	v := JobStatusView{
		JobID:           j.ID,
		UserID:          j.UserID,
		Kind:            j.Kind,
		Status:          j.Status,
		TotalEmails:     j.TotalEmails,
		ProcessedEmails: j.ProcessedEmails,
		NewEmails:       j.NewEmails,
		Transactions:    j.Transactions,
		Statements:      j.Statements,
	}
	if j.ErrorMessage != nil {
		v.ErrorMessage = *j.ErrorMessage
	}
	return v
}
