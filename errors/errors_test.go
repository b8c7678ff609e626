package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesChain(t *testing.T) {
	original := New("report missing")
	wrapped := Wrapf(original, "parse execution %s", "exec-1")

	assert.Contains(t, wrapped.Error(), "parse execution exec-1")
	assert.Contains(t, wrapped.Error(), "report missing")
	assert.True(t, Is(wrapped, original))
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func TestAs(t *testing.T) {
	original := &exitError{code: 2}
	wrapped := Wrap(original, "runner exited")

	var target *exitError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, 2, target.code)
}

func TestIsNotFoundError(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))

	// Sentinel and wrapped sentinel
	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(Wrap(ErrNotFound, "execution lookup")))

	// String fallback from raw SQL paths
	assert.True(t, IsNotFoundError(New("execution not found")))
	assert.True(t, IsNotFoundError(New("not found: exec-42")))

	assert.False(t, IsNotFoundError(New("connection refused")))
}

func TestIsInvalidRequestError(t *testing.T) {
	assert.True(t, IsInvalidRequestError(NewInvalidRequestError("project id is required")))
	assert.False(t, IsInvalidRequestError(New("boom")))
	assert.False(t, IsInvalidRequestError(nil))
}

func TestIsTimeoutError(t *testing.T) {
	err := Wrapf(ErrTimeout, "runner exceeded %ds", 30)
	assert.True(t, IsTimeoutError(err))
	assert.False(t, IsTimeoutError(New("boom")))
}

func TestNewNotFoundErrorMessage(t *testing.T) {
	err := NewNotFoundError("test case %q", "Create widget")
	assert.True(t, Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), `test case "Create widget"`)
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithStack(nil))
	assert.Nil(t, WithDetail(nil, "detail"))
}

func TestDetailsSurviveWrapping(t *testing.T) {
	err := New("step failed")
	err = WithDetail(err, "scenario: Create widget")
	err = Wrap(err, "reconciliation")

	details := GetAllDetails(err)
	assert.Contains(t, details, "scenario: Create widget")
}

func ExampleWrap() {
	baseErr := New("connection failed")
	err := Wrap(baseErr, "failed to open execution store")
	fmt.Println(err)
	// Output: failed to open execution store: connection failed
}
