package stores

import (
	"context"
	"time"
)

// Session is one hu deploy invocation.
type Session struct {
	ID            string     `json:"id"`
	Repo          string     `json:"repo"`
	Pipeline      string     `json:"pipeline"`
	StagingApp    string     `json:"staging_app"`
	ProductionApp string     `json:"production_app"`
	Operator      string     `json:"operator"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	ExitCode      *int       `json:"exit_code,omitempty"`
	Error         *string    `json:"error,omitempty"`
}

// Action is one dispatched menu action and its outcome.
type Action struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Action     string        `json:"action"`
	Phase      string        `json:"phase"`
	ReleaseTag string        `json:"release_tag"`
	Outcome    string        `json:"outcome"`
	ExitCode   int           `json:"exit_code"`
	Message    string        `json:"message"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// ActionEntry is an Action joined with its session, as shown by hu history.
type ActionEntry struct {
	Action
	Repo          string `json:"repo"`
	Pipeline      string `json:"pipeline"`
	ProductionApp string `json:"production_app"`
	Operator      string `json:"operator"`
}

// Observation records the phase classified from a snapshot.
type Observation struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Phase      string    `json:"phase"`
	ReleaseTag string    `json:"release_tag"`
	Pointers   string    `json:"pointers"` // JSON object: pointer name -> commit
	ObservedAt time.Time `json:"observed_at"`
}

// ActionFilter narrows ListActions. Nil fields match everything.
type ActionFilter struct {
	Repo    *string
	Action  *string
	Outcome *string
}

// Journal is the subset of the store a deploy session writes to.
type Journal interface {
	CreateSession(ctx context.Context, session *Session) error
	EndSession(ctx context.Context, id string, exitCode int, errMsg *string) error
	RecordAction(ctx context.Context, action *Action) error
	RecordObservation(ctx context.Context, obs *Observation) error
	Close() error
}

var _ Journal = (*SQLiteStore)(nil)
