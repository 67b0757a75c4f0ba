package ticket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
)

// JobState mirrors the state machine spec.md §4.4 names for a queued job.
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobActive    JobState = "active"
	JobDelayed   JobState = "delayed"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobStatus is the payload GetJobStatus returns.
type JobStatus struct {
	JobID           string   `json:"job_id"`
	Kind            string   `json:"kind"`
	State           JobState `json:"state"`
	ProgressPercent int      `json:"progress_percent"`
	Result          string   `json:"result,omitempty"`
	AttemptsMade    int      `json:"attempts_made"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// StatusStore persists job status in Redis, the same store the Availability
// Cache and Token Gate use for short-lived projections. Completed jobs are
// retained an hour, failed ones a day for forensics, approximating spec.md
// §4.4's "retained bounded" rule with a TTL rather than a row count since
// there is no dedicated jobs table.
type StatusStore struct {
	rdb          *redis.Client
	completedTTL time.Duration
	failedTTL    time.Duration
}

func NewStatusStore(rdb *redis.Client) *StatusStore {
	return &StatusStore{rdb: rdb, completedTTL: time.Hour, failedTTL: 24 * time.Hour}
}

func statusKey(jobID string) string { return "job_status:" + jobID }

// Set records a job's current status. A nil store or unreachable Redis is
// tolerated silently; job status is observability, not correctness.
func (s *StatusStore) Set(ctx context.Context, st JobStatus) {
	if s == nil || s.rdb == nil {
		return
	}
	st.UpdatedAt = time.Now().UTC()
	body, err := json.Marshal(st)
	if err != nil {
		return
	}
	ttl := 10 * time.Minute
	switch st.State {
	case JobCompleted:
		ttl = s.completedTTL
	case JobFailed:
		ttl = s.failedTTL
	}
	s.rdb.Set(ctx, statusKey(st.JobID), body, ttl)
}

// Get returns the last recorded status for a job id, or apperr.NotFound once
// it has aged out or never existed.
func (s *StatusStore) Get(ctx context.Context, jobID string) (*JobStatus, error) {
	if s == nil || s.rdb == nil {
		return nil, apperr.New(apperr.NotFound, "job status unavailable")
	}
	raw, err := s.rdb.Get(ctx, statusKey(jobID)).Result()
	if err != nil {
		return nil, apperr.New(apperr.NotFound, "job not found")
	}
	var st JobStatus
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "decode job status", err)
	}
	return &st, nil
}
