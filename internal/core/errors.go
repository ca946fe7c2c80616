package core

import (
	"errors"
	"fmt"
)

// Kind classifies which stage or concern produced an error.
type Kind string

const (
	KindFetch         Kind = "fetch"
	KindRecognition   Kind = "recognition"
	KindTransform     Kind = "transform"
	KindSynthesis     Kind = "synthesis"
	KindPublish       Kind = "publish"
	KindPersistence   Kind = "persistence"
	KindEmptySpeech   Kind = "empty_speech"
	KindConfiguration Kind = "configuration"
	KindUnknown       Kind = "unknown"
)

// ErrNoSpeech is wrapped by every empty-speech error.
var ErrNoSpeech = errors.New("no speech detected in provided audio")

// Error is a stage-aware error. StatusCode is the backend HTTP status when one exists.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

// NewError builds an Error of the given kind wrapping err.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NewStatusError builds an Error for a non-success backend response.
func NewStatusError(kind Kind, statusCode int, body string) *Error {
	return &Error{
		Kind:       kind,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("backend returned status %d: %s", statusCode, body),
	}
}

// Error formats the kind, the message and the wrapped cause.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}

	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var stageErr *Error
	if errors.As(err, &stageErr) {
		return stageErr.Kind
	}

	return KindUnknown
}

// IsClientFault reports whether err was caused by the input rather than by the system.
func IsClientFault(err error) bool {
	if err == nil {
		return false
	}

	return KindOf(err) == KindEmptySpeech || errors.Is(err, ErrInvalidJob)
}

// EmptySpeechError is returned when recognition produced no text.
func EmptySpeechError() *Error {
	return NewError(KindEmptySpeech, "recognition returned empty text", ErrNoSpeech)
}

// ConfigurationError is returned at startup when a required setting or secret is missing.
func ConfigurationError(message string, err error) *Error {
	return NewError(KindConfiguration, message, err)
}
