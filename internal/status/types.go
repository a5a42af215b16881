package status

import "time"

// RunPhase represents the phase of the most recent scheduled run of a strategy
type RunPhase string

const (
	// RunPhaseRunning means a run is in progress
	RunPhaseRunning RunPhase = "Running"

	// RunPhaseComplete means the last run finished without a fatal error
	RunPhaseComplete RunPhase = "Complete"

	// RunPhaseStopped means the last run was stopped before it finished
	RunPhaseStopped RunPhase = "Stopped"

	// RunPhaseFailed means the last run ended with a fatal error
	RunPhaseFailed RunPhase = "Failed"
)

// RunStatus represents the scheduling state of one strategy
type RunStatus struct {
	// Phase represents the phase of the last run
	Phase RunPhase `json:"phase,omitempty"`

	// Message provides additional information about the last run
	Message string `json:"message,omitempty"`

	// RunID identifies the last run in logs and notifications
	RunID string `json:"runId,omitempty"`

	// LastAttempt is the timestamp the last run was started
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of failed runs since the last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSuccess is the timestamp of the last run that completed without a fatal error
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`

	SubjectsProcessed   int `json:"subjectsProcessed,omitempty"`
	CharactersProcessed int `json:"charactersProcessed,omitempty"`
	ErrorCount          int `json:"errorCount,omitempty"`
}

// DueAt returns when the next run becomes due for interval. A strategy that
// was never attempted is due immediately.
func (s *RunStatus) DueAt(interval time.Duration) time.Time {
	if s == nil || s.LastAttempt == nil {
		return time.Time{}
	}
	return s.LastAttempt.Add(interval)
}
