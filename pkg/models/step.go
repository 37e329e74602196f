package models

import "time"

// StepStatus represents the lifecycle state of a single onboarding step.
//
// The intended flow is pending → in_progress → {completed | failed |
// skipped}, with failed → pending as the explicit retry transition.
// Transition legality is deliberately not enforced here: the portal relies
// on any-to-any updates for non-linear completion, so UpdateStep accepts
// every valid status value.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusSkipped    StepStatus = "skipped"
	StepStatusFailed     StepStatus = "failed"
)

// Valid reports whether s is one of the five step status values.
func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusPending, StepStatusInProgress, StepStatusCompleted, StepStatusSkipped, StepStatusFailed:
		return true
	}

	return false
}

// Terminal reports whether a step in this status needs no further work.
func (s StepStatus) Terminal() bool {
	return s == StepStatusCompleted || s == StepStatusSkipped
}

// Step is one unit of onboarding work within a workflow. StepNumber is
// 1-based and unique within the workflow. Steps are only ever created in
// bulk by workflow materialization; re-materialization fully replaces them.
type Step struct {
	ID               string         `json:"id"`
	WorkflowID       string         `json:"workflow_id"`
	StepNumber       int            `json:"step_number"`
	StepName         string         `json:"step_name"`
	StepStatus       StepStatus     `json:"step_status"`
	StepData         map[string]any `json:"step_data,omitempty"`
	ValidationErrors []string       `json:"validation_errors,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// MergeData merges patch into the step's data bag without replacing it and
// stamps step_data.last_updated. A nil patch still updates the timestamp.
func (s *Step) MergeData(patch map[string]any, now time.Time) {
	if s.StepData == nil {
		s.StepData = make(map[string]any, len(patch)+1)
	}

	for k, v := range patch {
		s.StepData[k] = v
	}

	s.StepData["last_updated"] = now.UTC().Format(time.RFC3339)
}
