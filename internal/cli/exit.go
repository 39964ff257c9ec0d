package cli

import (
	"errors"
	"fmt"

	"releaseweaver/internal/release"
)

const (
	ExitSuccess           = 0
	ExitPartialFailure    = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// InvocationError is a usage problem detected before any release work.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	switch {
	case errors.Is(err, release.ErrValidation):
		return ExitInvalidInvocation
	case errors.Is(err, release.ErrConfiguration):
		return ExitConfigError
	default:
		return ExitInternalError
	}
}

// exitForStatus maps a run status to an exit code. A release skipped by
// the access guard is not an error.
func exitForStatus(s release.Status) int {
	switch s {
	case release.StatusAllSucceeded, release.StatusSkipped:
		return ExitSuccess
	case release.StatusPartialFailure:
		return ExitPartialFailure
	case release.StatusValidationError:
		return ExitInvalidInvocation
	case release.StatusConfigurationError:
		return ExitConfigError
	default:
		return ExitInternalError
	}
}
