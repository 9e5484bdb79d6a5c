package export

import "fmt"

// Stage is how far a target's export got. Stages only move forward.
type Stage int

const (
	NotStarted Stage = iota
	Navigated
	DialogResolved
	Focused
	Preloaded
	Extracted
	Persisted
	Done
)

var stageNames = [...]string{
	NotStarted:     "not_started",
	Navigated:      "navigated",
	DialogResolved: "dialog_resolved",
	Focused:        "focused",
	Preloaded:      "preloaded",
	Extracted:      "extracted",
	Persisted:      "persisted",
	Done:           "done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// StageError is a failure inside one stage. Stage is the last stage that
// completed, so the partial artifact is whatever that stage flushed.
type StageError struct {
	TargetID string
	Stage    Stage
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("export %s failed after stage %s: %v", e.TargetID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
