package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// KindCoverBackfill asks a worker to resolve a missing book cover.
const KindCoverBackfill = "cover_backfill"

// Job is the tracked state of one queued unit of work.
type Job struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	BookID       string    `json:"bookId"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Handler processes one job. A returned error schedules a retry until the
// attempt limit is reached.
type Handler func(context.Context, Job) error

// jobRecord is the hash layout of a tracked job.
type jobRecord struct {
	Kind      string `redis:"kind"`
	BookID    string `redis:"book_id"`
	Status    string `redis:"status"`
	Error     string `redis:"error"`
	Attempts  int    `redis:"attempts"`
	CreatedMs int64  `redis:"created_ms"`
	UpdatedMs int64  `redis:"updated_ms"`
}

func (j Job) record() jobRecord {
	return jobRecord{
		Kind:      j.Kind,
		BookID:    j.BookID,
		Status:    j.Status,
		Error:     j.ErrorMessage,
		Attempts:  j.Attempts,
		CreatedMs: j.CreatedAt.UnixMilli(),
		UpdatedMs: j.UpdatedAt.UnixMilli(),
	}
}

func (r jobRecord) job(id string) Job {
	return Job{
		ID:           id,
		Kind:         r.Kind,
		BookID:       r.BookID,
		Status:       r.Status,
		ErrorMessage: r.Error,
		Attempts:     r.Attempts,
		CreatedAt:    time.UnixMilli(r.CreatedMs).UTC(),
		UpdatedAt:    time.UnixMilli(r.UpdatedMs).UTC(),
	}
}

// task is the stream entry that points a worker at a job.
type task struct {
	JobID  string
	Kind   string
	BookID string
}

func (t task) values() map[string]any {
	return map[string]any{"job_id": t.JobID, "kind": t.Kind, "book_id": t.BookID}
}

func taskFrom(msg redis.XMessage) (task, bool) {
	var t task
	t.JobID, _ = msg.Values["job_id"].(string)
	t.Kind, _ = msg.Values["kind"].(string)
	t.BookID, _ = msg.Values["book_id"].(string)
	return t, t.JobID != "" && t.BookID != ""
}
