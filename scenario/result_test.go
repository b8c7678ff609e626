package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
		want  Status
	}{
		{
			name: "all passed",
			steps: []Step{
				{Name: "the widget service is available", Status: StatusPassed},
				{Name: "I create a widget", Status: StatusPassed},
			},
			want: StatusPassed,
		},
		{
			name: "any failure dominates",
			steps: []Step{
				{Name: "the widget service is available", Status: StatusPassed},
				{Name: "I create a widget", Status: StatusFailed},
				{Name: "the response code is 201", Status: StatusSkipped},
			},
			want: StatusFailed,
		},
		{
			name: "all skipped",
			steps: []Step{
				{Name: "I create a widget", Status: StatusSkipped},
				{Name: "the response code is 201", Status: StatusSkipped},
			},
			want: StatusSkipped,
		},
		{
			name:  "no steps counts as skipped",
			steps: nil,
			want:  StatusSkipped,
		},
		{
			name: "passed and skipped mix is passed",
			steps: []Step{
				{Name: "I create a widget", Status: StatusPassed},
				{Name: "the audit log is written", Status: StatusSkipped},
			},
			want: StatusPassed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.steps))
		})
	}
}

func TestBuildErrorMessage(t *testing.T) {
	t.Run("no failures", func(t *testing.T) {
		steps := []Step{
			{Name: "I create a widget", Status: StatusPassed},
			{Name: "the response code is 201", Status: StatusSkipped},
		}
		assert.Empty(t, BuildErrorMessage(steps))
	})

	t.Run("single failure includes step name and message", func(t *testing.T) {
		steps := []Step{
			{Name: "I create a widget", Status: StatusPassed},
			{Name: "the response code is 201", Status: StatusFailed, ErrorMessage: "expected 201 got 500"},
		}
		assert.Equal(t, "the response code is 201: expected 201 got 500", BuildErrorMessage(steps))
	})

	t.Run("failure without message keeps step name", func(t *testing.T) {
		steps := []Step{
			{Name: "the response code is 201", Status: StatusFailed},
		}
		assert.Equal(t, "the response code is 201", BuildErrorMessage(steps))
	})

	t.Run("multiple failures joined", func(t *testing.T) {
		steps := []Step{
			{Name: "I create a widget", Status: StatusFailed, ErrorMessage: "connection refused"},
			{Name: "the response code is 201", Status: StatusFailed, ErrorMessage: "expected 201 got 500"},
		}
		assert.Equal(t,
			"I create a widget: connection refused; the response code is 201: expected 201 got 500",
			BuildErrorMessage(steps))
	})
}

func TestIsValidStatus(t *testing.T) {
	assert.True(t, IsValidStatus("passed"))
	assert.True(t, IsValidStatus("failed"))
	assert.True(t, IsValidStatus("skipped"))
	assert.False(t, IsValidStatus("pending"))
	assert.False(t, IsValidStatus(""))
}

func TestStatusFromRunner(t *testing.T) {
	assert.Equal(t, StatusPassed, StatusFromRunner("passed"))
	assert.Equal(t, StatusFailed, StatusFromRunner("failed"))
	assert.Equal(t, StatusSkipped, StatusFromRunner("skipped"))
	assert.Equal(t, StatusSkipped, StatusFromRunner("undefined"))
	assert.Equal(t, StatusSkipped, StatusFromRunner("pending"))
	assert.Equal(t, StatusSkipped, StatusFromRunner("ambiguous"))
}

func TestHookKinds(t *testing.T) {
	for _, kind := range []string{HookBefore, HookAfter, HookBeforeStep, HookAfterStep} {
		assert.True(t, IsHookKind(kind), kind)
	}
	assert.False(t, IsHookKind("Given"))
	assert.False(t, IsHookKind(""))

	assert.Equal(t, "Before Hook", SynthesizedHookName(HookBefore))
	assert.Equal(t, "AfterStep Hook", SynthesizedHookName(HookAfterStep))
}

func TestInstanceName(t *testing.T) {
	assert.Equal(t, "Create widget (Example 1)", InstanceName("Create widget", 1))
	assert.Equal(t, "Create widget (Example 12)", InstanceName("Create widget", 12))
}
