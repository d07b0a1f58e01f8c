package scheduler

import "fmt"

// SchedulerError represents a scheduling error.
type SchedulerError struct {
	Code    string
	Message string
	Cause   error
}

func (e *SchedulerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SchedulerError) Unwrap() error {
	return e.Cause
}

// Is matches on the error code.
func (e *SchedulerError) Is(target error) bool {
	t, ok := target.(*SchedulerError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrCodeUnknownSubject  = "UNKNOWN_SUBJECT"
	ErrCodeInvalidSchedule = "INVALID_SCHEDULE"
)

// ErrUnknownSubject is returned when no handler is registered for a subject kind.
var ErrUnknownSubject = &SchedulerError{Code: ErrCodeUnknownSubject, Message: "no handler for subject"}
