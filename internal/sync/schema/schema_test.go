package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTaskInput(t *testing.T) {
	high := "high"
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	input := TaskInput{
		Title:       "Plan the trip",
		Description: "Book everything before March",
		Priority:    &high,
		Deadline:    &deadline,
		AssigneeIDs: []uint{1, 2},
		Milestones: []MilestoneInput{
			{Title: "Book flights", Index: 0, AssigneeIDs: []uint{1}},
			{Title: "Book hotel", Index: 1, AssigneeIDs: []uint{2}},
		},
		TagNames: []string{"travel"},
	}
	require.NoError(t, Validate(input))
}

func TestValidateTaskInputRejectsBadPriority(t *testing.T) {
	urgent := "urgent"
	input := TaskInput{Title: "x", Priority: &urgent}
	assert.ErrorIs(t, Validate(input), ErrValidation)
}

func TestValidateTaskInputRejectsMissingTitle(t *testing.T) {
	assert.ErrorIs(t, Validate(TaskInput{}), ErrValidation)
}

func TestValidateMilestoneBounds(t *testing.T) {
	input := TaskInput{Title: "x"}
	for i := 0; i < MaxMilestonesPerTask+1; i++ {
		input.Milestones = append(input.Milestones, MilestoneInput{Title: "m", Index: 0})
	}
	assert.ErrorIs(t, Validate(input), ErrValidation, "more than %d milestones", MaxMilestonesPerTask)

	input.Milestones = []MilestoneInput{{Title: "m", Index: MaxMilestonesPerTask}}
	assert.ErrorIs(t, Validate(input), ErrValidation, "index out of range")

	input.Milestones = []MilestoneInput{{Title: "m", Index: MaxMilestonesPerTask - 1}}
	assert.NoError(t, Validate(input))
}

func TestCheckMilestoneAssignees(t *testing.T) {
	input := TaskInput{
		Title:       "x",
		AssigneeIDs: []uint{1, 2},
		Milestones: []MilestoneInput{
			{Title: "m", AssigneeIDs: []uint{1}},
		},
	}
	assert.True(t, input.CheckMilestoneAssignees())

	input.Milestones[0].AssigneeIDs = []uint{3}
	assert.False(t, input.CheckMilestoneAssignees())
}

func TestToWireConvertsDeadlines(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	input := TaskInput{
		Title:    "x",
		Deadline: &deadline,
		Milestones: []MilestoneInput{
			{Title: "with", Deadline: &deadline, Index: 0},
			{Title: "without", Index: 1},
		},
	}

	wire := input.ToWire()
	require.NotNil(t, wire.Deadline)
	assert.Equal(t, "2026-03-01T12:00:00Z", *wire.Deadline)
	require.Len(t, wire.Milestones, 2)
	require.NotNil(t, wire.Milestones[0].Deadline)
	assert.Equal(t, "2026-03-01T12:00:00Z", *wire.Milestones[0].Deadline)
	assert.Nil(t, wire.Milestones[1].Deadline, "no deadline stays nil on the wire")
}

func TestDeadlineWireRoundTrip(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	wire := DeadlineToWire(&deadline)
	require.NotNil(t, wire)
	back, err := DeadlineFromWire(wire)
	require.NoError(t, err)
	require.NotNil(t, back)
	assert.True(t, deadline.Equal(*back))

	back, err = DeadlineFromWire(nil)
	require.NoError(t, err)
	assert.Nil(t, back)

	empty := ""
	back, err = DeadlineFromWire(&empty)
	require.NoError(t, err)
	assert.Nil(t, back)

	garbage := "next tuesday"
	_, err = DeadlineFromWire(&garbage)
	assert.Error(t, err)
}

func TestValidateSliceFailsAtomically(t *testing.T) {
	rows := []TaskAssignee{
		{TaskID: 1, UserID: 2},
		{TaskID: 1}, // missing user id
		{TaskID: 1, UserID: 3},
	}
	assert.ErrorIs(t, ValidateSlice(rows), ErrValidation)

	rows[1].UserID = 4
	assert.NoError(t, ValidateSlice(rows))
}

func TestValidateSession(t *testing.T) {
	assert.NoError(t, Validate(Session{Token: "t", UserID: 1}))
	assert.ErrorIs(t, Validate(Session{UserID: 1}), ErrValidation)
}

func TestValidateRegisterInput(t *testing.T) {
	ok := RegisterInput{Username: "ana", Email: "ana@example.com", Password: "longenough"}
	assert.NoError(t, Validate(ok))

	bad := ok
	bad.Email = "not-an-email"
	assert.ErrorIs(t, Validate(bad), ErrValidation)

	bad = ok
	bad.Password = "short"
	assert.ErrorIs(t, Validate(bad), ErrValidation)
}
