// Package xerrors defines the error taxonomy shared by the FATX and SVOD
// engines: one Kind per failure mode, wrapped in an error type that supports
// errors.Is/errors.Unwrap and accumulates context without losing the
// original Kind.
package xerrors

import "fmt"

// Kind is one of the failure modes a core operation can report. Every
// precondition violation in the FATX and SVOD engines maps to exactly one
// Kind; none are retried internally.
type Kind string

const (
	// IoFailure means the underlying device read/write/seek failed.
	IoFailure Kind = "I/O operation failed"
	// OutOfRange means a seek or access fell beyond a logical or physical end.
	OutOfRange Kind = "access out of range"
	// OutOfSpace means there weren't enough free clusters to satisfy an
	// allocation.
	OutOfSpace Kind = "no space left on volume"
	// BadChain means the chain map contains a cycle, references an invalid
	// cluster, or disagrees with a claimed starting cluster.
	BadChain Kind = "cluster chain is inconsistent"
	// NameTooLong means a FATX entry name exceeds 42 bytes.
	NameTooLong Kind = "entry name too long"
	// UnsupportedContent means an SVOD header's file_system or content_type
	// value isn't one the core accepts.
	UnsupportedContent Kind = "unsupported content type"
	// NotFound means a path wasn't present in the directory tree.
	NotFound Kind = "not found"
	// NotResignable means a resign was requested on a non-CON volume.
	NotResignable Kind = "volume is not resignable"
	// DirectoryMissing means MultiFileIO couldn't enumerate its directory.
	DirectoryMissing Kind = "directory missing"
	// EmptyVolume means MultiFileIO's directory had no files in it.
	EmptyVolume Kind = "volume has no data files"
)

// Error is the error type returned by every core operation. It carries a
// Kind (for programmatic dispatch via errors.Is) and an optional message
// and wrapped cause for context.
type Error struct {
	Kind    Kind
	message string
	cause   error
}

// New creates an Error of the given Kind with the Kind's default message.
func New(kind Kind) *Error {
	return &Error{Kind: kind, message: string(kind)}
}

// Newf creates an Error of the given Kind with a formatted message appended
// to the Kind's default description.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		message: fmt.Sprintf("%s: %s", kind, fmt.Sprintf(format, args...)),
	}
}

// Wrap creates an Error of the given Kind that wraps an underlying cause,
// e.g. an *os.PathError surfaced as IoFailure.
func Wrap(kind Kind, cause error) *Error {
	return &Error{
		Kind:    kind,
		message: fmt.Sprintf("%s: %s", kind, cause.Error()),
		cause:   cause,
	}
}

func (e *Error) Error() string {
	return e.message
}

// WithMessage returns a new Error of the same Kind with additional context
// appended to the message.
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		Kind:    e.Kind,
		message: fmt.Sprintf("%s: %s", e.message, message),
		cause:   e,
	}
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is lets errors.Is(err, xerrors.New(SomeKind)) match any *Error with the
// same Kind, regardless of message or wrapped cause.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
