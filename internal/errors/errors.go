// Package errors provides structured error handling for the automation core.
package errors

import "fmt"

// ErrorCode identifies a failure class. Loop-local conditions
// (capture, classification, no-op clicks, OCR) are recovered in place;
// only configuration and session-state codes surface to callers.
type ErrorCode int

const (
	Unknown ErrorCode = iota
	Internal
	ConfigInvalid
	NoCapture     // loop started without a valid trigger capture
	SessionBusy   // another variant owns the session
	CaptureFailed // off-screen or failed region grab
	ClassifyAmbiguous
	ClickNoOp     // click produced no observable state change
	WaitTimeout   // InitialWait or AwaitReady deadline exceeded
	StallDetected // too many consecutive short rounds
	OCRFailed
)

var codeNames = map[ErrorCode]string{
	Unknown:           "UNKNOWN",
	Internal:          "INTERNAL",
	ConfigInvalid:     "CONFIG_INVALID",
	NoCapture:         "NO_CAPTURE",
	SessionBusy:       "SESSION_BUSY",
	CaptureFailed:     "CAPTURE_FAILED",
	ClassifyAmbiguous: "CLASSIFY_AMBIGUOUS",
	ClickNoOp:         "CLICK_NOOP",
	WaitTimeout:       "WAIT_TIMEOUT",
	StallDetected:     "STALL_DETECTED",
	OCRFailed:         "OCR_FAILED",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// AppError is the base error type with structured code and metadata.
type AppError struct {
	Code     ErrorCode
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Code extracts the ErrorCode from any error, Unknown if unstructured.
func Code(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return Unknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true if the error is potentially transient.
// Capture and OCR failures come and go with window occlusion and
// rendering; geometry and session errors do not fix themselves.
func IsRetryable(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	switch appErr.Code {
	case CaptureFailed, ClassifyAmbiguous, OCRFailed:
		return true
	default:
		return false
	}
}
