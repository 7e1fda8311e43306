package repository

import (
	"emperror.dev/errors"
)

// Kind classifies a failure so the HTTP layer can choose a status code
// without inspecting messages.
type Kind string

const (
	// KindCredential is a local I/O failure while writing the password file.
	KindCredential Kind = "credential"
	// KindExecution means the restic process could not be started at all.
	KindExecution Kind = "execution"
	// KindToolReported means restic ran and exited with a nonzero status.
	KindToolReported Kind = "tool_reported"
	// KindDecoding means restic succeeded but its stdout was not valid UTF-8
	// or not valid JSON.
	KindDecoding Kind = "decoding"
	// KindValidation is a caller supplied value that failed a precondition.
	KindValidation Kind = "validation"
	// KindTimeout means restic was interrupted after exceeding its time limit.
	KindTimeout Kind = "timeout"
	// KindCancelled means restic was interrupted because its caller went away.
	KindCancelled Kind = "cancelled"
	// KindConfiguration means the repository configuration is unusable.
	KindConfiguration Kind = "configuration"
)

// Error is returned by every operation in this package. The message is
// intended to be shown to API callers as-is.
type Error struct {
	Kind    Kind
	message string
	cause   error
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, message: message}
}

func wrapError(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the Kind of err, or an empty Kind when err did not come from
// this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsValidationError reports whether err was caused by invalid caller input.
func IsValidationError(err error) bool {
	return KindOf(err) == KindValidation
}
