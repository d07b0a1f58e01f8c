package camera

import "fmt"

// CameraError represents a camera-domain error.
type CameraError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CameraError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CameraError) Unwrap() error {
	return e.Cause
}

// Is matches on the error code so callers can use errors.Is with the sentinels below.
func (e *CameraError) Is(target error) bool {
	t, ok := target.(*CameraError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrCodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	ErrCodeSourceFailed      = "SOURCE_FAILED"
	ErrCodeNoFrameYet        = "NO_FRAME_YET"
	ErrCodeCameraNotFound    = "CAMERA_NOT_FOUND"
)

// Sentinels for errors.Is.
var (
	ErrNoFrameYet     = &CameraError{Code: ErrCodeNoFrameYet, Message: "no frame captured yet"}
	ErrCameraNotFound = &CameraError{Code: ErrCodeCameraNotFound, Message: "camera not found"}
)

// NewCameraError creates a new camera error.
func NewCameraError(code, message string, cause error) *CameraError {
	return &CameraError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
