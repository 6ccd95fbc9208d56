package domain

import (
	"errors"
	"fmt"
)

// ErrHandleNotFound is returned when a handle ID cannot be found in the store.
var ErrHandleNotFound = errors.New("handle not found")

// ErrChartNotFound is returned when a chart source has no chart with the given name.
var ErrChartNotFound = errors.New("chart not found")

// ConfigurationError reports a chart that is unknown or malformed.
// It is raised before any invocation starts.
type ConfigurationError struct {
	Chart    string
	Location string
	Reason   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("chart %q", e.Chart)
	if e.Location != "" {
		msg += fmt.Sprintf(" (%s)", e.Location)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ConflictError reports a second active request or a concurrent modification.
type ConflictError struct {
	HandleID string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on handle %s: %s", e.HandleID, e.Reason)
}

// TaskExecutionError is raised by a task. It aborts the transition.
type TaskExecutionError struct {
	Task      string
	Reason    string
	Retryable bool
	Err       error
}

func (e *TaskExecutionError) Error() string {
	msg := fmt.Sprintf("task %s failed: %s", e.Task, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// IsRetryable reports whether err carries a retryable TaskExecutionError.
func IsRetryable(err error) bool {
	var te *TaskExecutionError
	return errors.As(err, &te) && te.Retryable
}
