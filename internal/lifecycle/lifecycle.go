// Package lifecycle owns the job status state machine. Every mutating job
// operation goes through Transition; nothing else assigns Job.Status.
package lifecycle

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kiranshivaraju/clearops/pkg/models"
)

var (
	// ErrInvalidTransition means the requested operation is incompatible with the job's current status.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrGuardViolation means a business rule blocks the operation regardless of the transition table.
	ErrGuardViolation = errors.New("job guard violation")
)

var transitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusPending: {models.JobStatusCreated},
	models.JobStatusCreated: {
		models.JobStatusQuoteSent,
		models.JobStatusCrewAssigned,
		models.JobStatusCrewDispatched,
		models.JobStatusCancelled,
	},
	models.JobStatusQuoteSent: {
		models.JobStatusQuoteAccepted,
		models.JobStatusQuoteRejected,
		models.JobStatusCancelled,
	},
	models.JobStatusQuoteAccepted: {
		models.JobStatusCrewAssigned,
		models.JobStatusCrewDispatched,
		models.JobStatusCrewArrived,
		models.JobStatusCancelled,
	},
	models.JobStatusQuoteRejected: {models.JobStatusQuoteSent},
	models.JobStatusCrewAssigned: {
		models.JobStatusCrewDispatched,
		models.JobStatusQuoteSent,
		models.JobStatusCancelled,
	},
	models.JobStatusCrewDispatched: {
		models.JobStatusCrewArrived,
		models.JobStatusQuoteSent,
		models.JobStatusCancelled,
	},
	models.JobStatusCrewArrived:         {models.JobStatusBeforePhoto, models.JobStatusCancelled},
	models.JobStatusBeforePhoto:         {models.JobStatusClearanceInProgress},
	models.JobStatusClearanceInProgress: {models.JobStatusAfterPhoto},
	models.JobStatusAfterPhoto:          {models.JobStatusWorkCompleted},
	models.JobStatusWorkCompleted:       {models.JobStatusCompleted},
	models.JobStatusCompleted:           nil,
	models.JobStatusCancelled:           nil,
}

// Cancellation is only possible before the crew starts work.
var cancellable = []models.JobStatus{
	models.JobStatusCreated,
	models.JobStatusQuoteSent,
	models.JobStatusQuoteAccepted,
	models.JobStatusCrewAssigned,
	models.JobStatusCrewDispatched,
	models.JobStatusCrewArrived,
}

// Statuses on the crew path: entering them requires an assigned crew.
var crewRequired = []models.JobStatus{
	models.JobStatusCrewAssigned,
	models.JobStatusCrewDispatched,
	models.JobStatusCrewArrived,
	models.JobStatusBeforePhoto,
	models.JobStatusClearanceInProgress,
	models.JobStatusAfterPhoto,
	models.JobStatusWorkCompleted,
	models.JobStatusCompleted,
}

// Valid reports whether s is a known job status.
func Valid(s models.JobStatus) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether to is a permitted successor of from.
func CanTransition(from, to models.JobStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Successors returns the statuses reachable from s in one step.
func Successors(s models.JobStatus) []models.JobStatus {
	return slices.Clone(transitions[s])
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s models.JobStatus) bool {
	return Valid(s) && len(transitions[s]) == 0
}

// Cancellable reports whether a job in status s may be cancelled.
func Cancellable(s models.JobStatus) bool {
	return slices.Contains(cancellable, s)
}

// Require checks that the job is in one of the allowed statuses. Call sites use
// it where the operation needs an exact predecessor (approve needs quote_sent,
// rating needs job_completed), on top of the transition table.
func Require(job *models.Job, allowed ...models.JobStatus) error {
	if slices.Contains(allowed, job.Status) {
		return nil
	}
	return fmt.Errorf("%w: job is %s, operation requires %v", ErrInvalidTransition, job.Status, allowed)
}

// Transition moves the job to status to and bumps UpdatedAt. The job is left
// untouched when the move is not allowed.
func Transition(job *models.Job, to models.JobStatus, now time.Time) error {
	if !CanTransition(job.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, to)
	}
	if slices.Contains(crewRequired, to) && job.AssignedCrewID == nil {
		return fmt.Errorf("%w: status %s requires an assigned crew", ErrGuardViolation, to)
	}

	job.Status = to
	job.UpdatedAt = now
	if to == models.JobStatusCompleted {
		completedAt := now
		job.CompletedAt = &completedAt
	}
	return nil
}
