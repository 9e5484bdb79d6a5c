package store

import "time"

// Status values for runs and exports
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Run is one batch invocation
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"` // zero while running
	Mode       string    `json:"mode"`
	Targets    int       `json:"targets"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// Outcome is what a finished export attempt left behind
type Outcome struct {
	Stage    string
	Artifact string
	Records  int
	Frames   int
}

// ExportEntry is one target attempt within a run
type ExportEntry struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	TargetID   string    `json:"target_id"`
	TargetURL  string    `json:"target_url"`
	Stage      string    `json:"stage"`
	Artifact   string    `json:"artifact"`
	Records    int       `json:"records"`
	Frames     int       `json:"frames"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"` // zero while running
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}
