package lifecycle_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/lifecycle"
	"github.com/kiranshivaraju/clearops/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []models.JobStatus{
	models.JobStatusPending,
	models.JobStatusCreated,
	models.JobStatusQuoteSent,
	models.JobStatusQuoteAccepted,
	models.JobStatusQuoteRejected,
	models.JobStatusCrewAssigned,
	models.JobStatusCrewDispatched,
	models.JobStatusCrewArrived,
	models.JobStatusBeforePhoto,
	models.JobStatusClearanceInProgress,
	models.JobStatusAfterPhoto,
	models.JobStatusWorkCompleted,
	models.JobStatusCompleted,
	models.JobStatusCancelled,
}

func jobIn(status models.JobStatus, withCrew bool) *models.Job {
	j := &models.Job{ID: uuid.New(), Status: status, UpdatedAt: time.Unix(0, 0).UTC()}
	if withCrew {
		crewID := uuid.New()
		j.AssignedCrewID = &crewID
	}
	return j
}

func TestValid_AllStatusesKnown(t *testing.T) {
	for _, s := range allStatuses {
		assert.True(t, lifecycle.Valid(s), s)
	}
	assert.False(t, lifecycle.Valid("crew-dispatched"))
	assert.False(t, lifecycle.Valid(""))
}

func TestTransition_HappyPath(t *testing.T) {
	path := []models.JobStatus{
		models.JobStatusCreated,
		models.JobStatusQuoteSent,
		models.JobStatusQuoteAccepted,
		models.JobStatusCrewAssigned,
		models.JobStatusCrewDispatched,
		models.JobStatusCrewArrived,
		models.JobStatusBeforePhoto,
		models.JobStatusClearanceInProgress,
		models.JobStatusAfterPhoto,
		models.JobStatusWorkCompleted,
		models.JobStatusCompleted,
	}

	job := jobIn(models.JobStatusPending, true)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, next := range path {
		at := now.Add(time.Duration(i) * time.Minute)
		require.NoError(t, lifecycle.Transition(job, next, at), "-> %s", next)
		assert.Equal(t, next, job.Status)
		assert.Equal(t, at, job.UpdatedAt)
	}

	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, job.UpdatedAt, *job.CompletedAt)
	assert.True(t, lifecycle.IsTerminal(job.Status))
}

func TestTransition_InvalidLeavesJobUntouched(t *testing.T) {
	job := jobIn(models.JobStatusPending, false)
	before := *job

	err := lifecycle.Transition(job, models.JobStatusCompleted, time.Now())
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	assert.Equal(t, before, *job)
}

func TestTransition_TerminalStatesHaveNoSuccessors(t *testing.T) {
	for _, from := range []models.JobStatus{models.JobStatusCompleted, models.JobStatusCancelled} {
		for _, to := range allStatuses {
			job := jobIn(from, true)
			err := lifecycle.Transition(job, to, time.Now())
			assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "%s -> %s", from, to)
		}
	}
}

func TestTransition_CrewPathRequiresCrew(t *testing.T) {
	job := jobIn(models.JobStatusCreated, false)
	err := lifecycle.Transition(job, models.JobStatusCrewDispatched, time.Now())
	require.ErrorIs(t, err, lifecycle.ErrGuardViolation)
	assert.Equal(t, models.JobStatusCreated, job.Status)

	job = jobIn(models.JobStatusQuoteAccepted, false)
	err = lifecycle.Transition(job, models.JobStatusCrewArrived, time.Now())
	require.ErrorIs(t, err, lifecycle.ErrGuardViolation)
}

func TestTransition_QuoteRejectedCanBeRequoted(t *testing.T) {
	job := jobIn(models.JobStatusQuoteRejected, false)
	require.NoError(t, lifecycle.Transition(job, models.JobStatusQuoteSent, time.Now()))
	assert.ErrorIs(t, lifecycle.Transition(job, models.JobStatusQuoteSent, time.Now()), lifecycle.ErrInvalidTransition)
}

func TestCancellable(t *testing.T) {
	want := map[models.JobStatus]bool{
		models.JobStatusCreated:        true,
		models.JobStatusQuoteSent:      true,
		models.JobStatusQuoteAccepted:  true,
		models.JobStatusCrewAssigned:   true,
		models.JobStatusCrewDispatched: true,
		models.JobStatusCrewArrived:    true,
	}
	for _, s := range allStatuses {
		assert.Equal(t, want[s], lifecycle.Cancellable(s), s)
		if want[s] {
			assert.True(t, lifecycle.CanTransition(s, models.JobStatusCancelled), "table must allow %s -> cancelled", s)
		}
	}
}

func TestRequire(t *testing.T) {
	job := jobIn(models.JobStatusQuoteSent, false)
	assert.NoError(t, lifecycle.Require(job, models.JobStatusQuoteSent))

	job.Status = models.JobStatusQuoteAccepted
	err := lifecycle.Require(job, models.JobStatusQuoteSent)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "quote_accepted")
}

func TestSuccessors_ReturnsCopy(t *testing.T) {
	next := lifecycle.Successors(models.JobStatusCreated)
	require.NotEmpty(t, next)
	next[0] = models.JobStatusCompleted

	assert.False(t, lifecycle.CanTransition(models.JobStatusCreated, models.JobStatusCompleted))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Awaiting Quote", lifecycle.Label(models.JobStatusCreated))
	assert.Equal(t, "Work Started", lifecycle.Label(models.JobStatusAfterPhoto))
	assert.Equal(t, "mystery", lifecycle.Label("mystery"))
}
