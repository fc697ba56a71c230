package domain

import (
	"fmt"
	"time"
)

// Action names a discovery activity that workers can register against.
type Action string

// The closed set of actions. Registrations naming anything else are
// rejected at startup.
const (
	ActionDiscover Action = "discover"
	ActionArpnip   Action = "arpnip"
	ActionMacsuck  Action = "macsuck"
	ActionExpire   Action = "expire"
	ActionNbtstat  Action = "nbtstat"
)

// ValidAction reports whether a belongs to the closed action set.
func ValidAction(a Action) bool {
	switch a {
	case ActionDiscover, ActionArpnip, ActionMacsuck, ActionExpire, ActionNbtstat:
		return true
	}
	return false
}

// JobStatus tracks a job through the queue.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobDeferred JobStatus = "deferred"
	JobErrored  JobStatus = "errored"
)

// Job is a unit of discovery work submitted to the job system.
type Job struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Subaction string    `json:"subaction,omitempty"`
	Target    string    `json:"target"` // device IP

	// DedupKey carries the remote identity string, when known, so the
	// job system can suppress duplicate discovery of the same logical
	// device reached via multiple paths.
	DedupKey string `json:"dedup_key,omitempty"`

	Status    JobStatus  `json:"status"`
	Log       string     `json:"log,omitempty"`
	Submitted time.Time  `json:"submitted"`
	Started   *time.Time `json:"started,omitempty"`
	Finished  *time.Time `json:"finished,omitempty"`
}

// NewJob creates a queued job for the given action and target.
func NewJob(action Action, target string) *Job {
	return &Job{
		Action:    action,
		Target:    target,
		Status:    JobQueued,
		Submitted: time.Now(),
	}
}

func (j *Job) String() string {
	return fmt.Sprintf("%s[%s]", j.Action, j.Target)
}
