package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThreadTypeMachine_Table(t *testing.T) {
	cases := []struct {
		from, to string
		valid    bool
	}{
		{"base", "parallel", true},
		{"base", "big", true},
		{"base", "long", true},
		{"base", "chained", false},
		{"base", "fusion", false},
		{"parallel", "base", true},
		{"parallel", "fusion", true},
		{"parallel", "chained", true},
		{"chained", "parallel", true},
		{"chained", "fusion", true},
		{"chained", "base", false},
		{"fusion", "base", true},
		{"fusion", "parallel", false},
		{"big", "parallel", true},
		{"big", "fusion", true},
		{"long", "base", true},
		{"long", "parallel", true},
		{"long", "big", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.valid, ThreadTypeMachine.IsValidTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestTaskStatusMachine_ArchivedTerminal(t *testing.T) {
	assert.Nil(t, TaskStatusMachine.ValidTransitions(string(TaskStatusArchived)))

	res := TaskStatusMachine.Transition(string(TaskStatusArchived), string(TaskStatusReady), false)
	assert.False(t, res.Success)

	// Same-state on a terminal state is still a valid no-op.
	res = TaskStatusMachine.Transition(string(TaskStatusArchived), string(TaskStatusArchived), false)
	assert.True(t, res.Success)
	assert.True(t, res.Noop)
}

func TestDeterminePhase(t *testing.T) {
	assert.Equal(t, PhaseTodo, DeterminePhase(0, false))
	assert.Equal(t, PhaseTodo, DeterminePhase(0, true))
	assert.Equal(t, PhaseCoding, DeterminePhase(3, true))
	assert.Equal(t, PhaseReview, DeterminePhase(3, false))
	assert.Equal(t, PhaseReview, DeterminePhase(1, false))
}

func TestSession_Merged(t *testing.T) {
	s := &Session{}
	assert.False(t, s.Merged())

	now := time.Now()
	s.MergedAt = &now
	assert.True(t, s.Merged())
}

func TestSession_DisplayName(t *testing.T) {
	s := &Session{Branch: "strand/feature-x"}
	assert.Equal(t, "strand/feature-x", s.DisplayName())

	s.Nickname = "feature x"
	assert.Equal(t, "feature x", s.DisplayName())
}
