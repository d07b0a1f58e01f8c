package analysis

import (
	"errors"
	"fmt"
)

// AnalysisError represents a failed analysis job.
type AnalysisError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// Is matches on the error code.
func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrCodeCallFailed     = "ANALYSIS_CALL_FAILED"
	ErrCodeNoFrame        = "NO_FRAME"
	ErrCodeCameraNotFound = "CAMERA_NOT_FOUND"
	ErrCodeNoReferences   = "NO_REFERENCES"
	ErrCodeMeterNotFound  = "METER_NOT_FOUND"
)

// Sentinels for errors.Is.
var (
	ErrCallFailed     = &AnalysisError{Code: ErrCodeCallFailed, Message: "analysis call failed"}
	ErrNoFrame        = &AnalysisError{Code: ErrCodeNoFrame, Message: "no frame available"}
	ErrCameraNotFound = &AnalysisError{Code: ErrCodeCameraNotFound, Message: "camera not found"}
	ErrNoReferences   = &AnalysisError{Code: ErrCodeNoReferences, Message: "no reference faces"}
	ErrMeterNotFound  = &AnalysisError{Code: ErrCodeMeterNotFound, Message: "meter not found"}
)

func newError(code, message string, cause error) *AnalysisError {
	return &AnalysisError{Code: code, Message: message, Cause: cause}
}

// Code returns the analysis error code of err, or "" when err is not one.
func Code(err error) string {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
