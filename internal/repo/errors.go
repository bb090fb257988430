package repo

import (
	"errors"
	"fmt"
)

// Kind classifies the failures surfaced by repository operations.
type Kind string

// Error kinds.
const (
	KindNotARepo           Kind = "not_a_repo"
	KindAlreadyExists      Kind = "already_exists"
	KindNoChanges          Kind = "no_changes"
	KindUnknownRef         Kind = "unknown_ref"
	KindUncommittedChanges Kind = "uncommitted_changes"
	KindLockedFiles        Kind = "locked_files"
	KindHookRejected       Kind = "hook_rejected"
	KindTimeout            Kind = "timeout"
	KindCorruptObject      Kind = "corrupt_object"
	KindIOError            Kind = "io_error"
	// KindInvalidState covers requests that are well-formed but illegal
	// in the repository's current state, like deleting the last branch.
	KindInvalidState Kind = "invalid_state"
)

// Error is the typed failure returned by repository operations.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errf builds a typed error with a formatted message.
func Errf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a typed error around an underlying cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind of a repository error, or "" for foreign
// errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AmbiguityError reports a commit-hash prefix matching more than one
// commit.
type AmbiguityError struct {
	Prefix  string
	Matches []string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("unknown_ref: prefix %q is ambiguous (%d matches)", e.Prefix, len(e.Matches))
}
