package deb

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying every failure returned by this package.
// Use errors.Is to test for them; the typed errors below wrap one of these.
var (
	// ErrConfig is returned for missing or invalid options and unresolvable hooks.
	ErrConfig = errors.New("deb: invalid configuration")

	// ErrFormat is returned when an archive member header field fails validation.
	ErrFormat = errors.New("deb: invalid member header")

	// ErrIO is returned for filesystem and stream failures.
	ErrIO = errors.New("deb: i/o failure")

	// ErrState is returned when a component is misused, e.g. writing through
	// an archive writer whose sink already failed.
	ErrState = errors.New("deb: invalid state")
)

// FieldError reports an ar member header field that does not fit the format.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("ar header field %s (%q): %s", e.Field, e.Value, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrFormat }

// MemberError reports a failure while writing a named archive member.
type MemberError struct {
	Member string
	Err    error
}

func (e *MemberError) Error() string {
	return fmt.Sprintf("writing member %s: %v", e.Member, e.Err)
}

func (e *MemberError) Unwrap() error { return e.Err }

// HookError reports a hook that could not be resolved or failed when invoked.
type HookError struct {
	Hook string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s: %v", e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// StageError identifies the packaging stage a run failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ioErr tags err as an ErrIO failure, keeping the original cause reachable.
func ioErr(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrIO, fmt.Errorf(format, args...))
}
