package release

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify a failure.
var (
	// ErrValidation: the trigger could not be turned into a release. Aborts before any job runs.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration: the job graph or project configuration is unusable. Aborts before scheduling.
	ErrConfiguration = errors.New("configuration error")
	// ErrConflict: the target already holds this version. Terminal for the job only.
	ErrConflict = errors.New("conflict")
	// ErrAuth: a collaborator rejected the credentials. Terminal for the job only.
	ErrAuth = errors.New("unauthorized")
	// ErrNotFound: a looked-up entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotification: the announcement could not be delivered. Never changes run status.
	ErrNotification = errors.New("notification failed")
)

// Code is the stable, machine-readable name of an error kind.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeConfiguration Code = "CONFIGURATION_ERROR"
	CodeConflict      Code = "CONFLICT"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeNotFound      Code = "NOT_FOUND"
	CodeNotification  Code = "NOTIFICATION_FAILED"
	CodeInternal      Code = "INTERNAL"
)

// Error is a classified release failure.
//
// Kind is one of the sentinel errors above. Op names the operation that
// failed (e.g. "resolve", "publish-package"). Cause, when set, is the
// underlying error reported by a collaborator.
type Error struct {
	Kind  error
	Op    string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := e.Kind.Error()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(kind error, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Cause: cause}
}

// ValidationError reports an unusable trigger.
func ValidationError(op, format string, args ...any) error {
	return newError(ErrValidation, op, fmt.Sprintf(format, args...), nil)
}

// ConfigurationError reports an unusable job graph or configuration.
func ConfigurationError(op string, cause error) error {
	return newError(ErrConfiguration, op, "", cause)
}

// ConflictError reports a duplicate publish.
func ConflictError(op, msg string) error {
	return newError(ErrConflict, op, msg, nil)
}

// AuthError reports rejected credentials.
func AuthError(op string, cause error) error {
	return newError(ErrAuth, op, "", cause)
}

// NotFoundError reports a missing entry.
func NotFoundError(op, msg string) error {
	return newError(ErrNotFound, op, msg, nil)
}

// NotificationError reports an announcement that could not be sent.
func NotificationError(op string, cause error) error {
	return newError(ErrNotification, op, "", cause)
}

// CodeOf returns the Code for err, or CodeInternal when err carries no known kind.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrAuth):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrNotification):
		return CodeNotification
	default:
		return CodeInternal
	}
}
