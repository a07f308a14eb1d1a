package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTask() Task {
	return Task{
		ID:            "t1",
		Title:         "Inspect transformer",
		Date:          "2025-01-06",
		Role:          RoleTechnician,
		City:          "Seattle",
		DurationHours: 2,
		Status:        StatusToDo,
	}
}

func TestValidate_Accepts(t *testing.T) {
	require.NoError(t, validTask().Validate())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Task)
	}{
		{"missing title", func(t *Task) { t.Title = "" }},
		{"missing city", func(t *Task) { t.City = "" }},
		{"missing date", func(t *Task) { t.Date = "" }},
		{"bad date", func(t *Task) { t.Date = "06/01/2025" }},
		{"impossible date", func(t *Task) { t.Date = "2025-02-30" }},
		{"negative duration", func(t *Task) { t.DurationHours = -1 }},
		{"unknown status", func(t *Task) { t.Status = "Blocked" }},
		{"unknown role", func(t *Task) { t.Role = "admin" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := validTask()
			tt.mutate(&task)
			assert.ErrorIs(t, task.Validate(), ErrInvalidTask)
		})
	}
}

func TestNormalize_Defaults(t *testing.T) {
	task := Task{Title: "  Fix pole ", City: " Tacoma ", Date: "2025-01-06 "}.Normalize()
	assert.Equal(t, "Fix pole", task.Title)
	assert.Equal(t, "Tacoma", task.City)
	assert.Equal(t, "2025-01-06", task.Date)
	assert.Equal(t, RoleTechnician, task.Role)
	assert.Equal(t, StatusToDo, task.Status)
}

func TestCanReschedule(t *testing.T) {
	assert.True(t, CanReschedule(User{Role: RoleManager}))
	assert.True(t, CanReschedule(User{Role: RoleDispatcher}))
	assert.False(t, CanReschedule(User{Role: RoleTechnician}))
	assert.False(t, CanReschedule(User{}))
}
