package detections

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures so the serving layer can map them
// to response codes and outcome counters without parsing error text.
type ErrorKind int

const (
	// KindLoad: weights artifact missing or rejected by the backend. Fatal at
	// startup; the process must not serve traffic.
	KindLoad ErrorKind = iota
	// KindNotReady: inference attempted before load completed.
	KindNotReady
	// KindUnsupportedFormat, KindPayloadTooLarge, KindDecode: client-input
	// errors, recoverable per request.
	KindUnsupportedFormat
	KindPayloadTooLarge
	KindDecode
	// KindInference: backend or postprocessing failure. Reported to clients
	// as a generic category only; the cause stays in the logs.
	KindInference
)

// PipelineError is the typed error produced by the detection pipeline and
// its dispatcher.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func newError(kind ErrorKind, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Cause: cause}
}

func NewLoadError(message string, cause error) *PipelineError {
	return newError(KindLoad, message, cause)
}

func NewNotReadyError() *PipelineError {
	return newError(KindNotReady, "model not loaded", nil)
}

func NewUnsupportedFormatError(contentType string) *PipelineError {
	return newError(KindUnsupportedFormat, fmt.Sprintf("unsupported format %q, use JPEG, PNG or WebP", contentType), nil)
}

func NewPayloadTooLargeError(size int) *PipelineError {
	return newError(KindPayloadTooLarge, fmt.Sprintf("image of %d bytes exceeds the %d MiB limit", size, MaxImageBytes>>20), nil)
}

func NewDecodeError(cause error) *PipelineError {
	return newError(KindDecode, "could not decode image", cause)
}

func NewInferenceError(cause error) *PipelineError {
	return newError(KindInference, "inference failed", cause)
}

// KindOf extracts the error kind, defaulting unclassified errors to
// KindInference so nothing internal leaks past the unit-of-work boundary.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInference
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Kind == kind
}
