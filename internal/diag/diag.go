// Package diag implements the fail-fast diagnostic discipline spec.md §7
// describes: internal invariant violations and limit-exceeded conditions
// are never retried or recovered locally, only surfaced with a kind, a
// message, and a non-zero process exit.
package diag

import (
	"fmt"
	"log"
	"os"
)

// Kind classifies one diagnostic, spec.md §7 "Error kinds".
type Kind int

const (
	Internal Kind = iota
	LimitExceeded
	IO
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case LimitExceeded:
		return "limit exceeded"
	case IO:
		return "I/O"
	case Unsupported:
		return "unsupported"
	}
	return "unknown"
}

// Error is the typed value Session.Fail panics with; the driver recovers
// it at the top level and turns it into a diagnostic plus exit code.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

// Session owns the line logger every pipeline stage writes progress to,
// mirroring the teacher's plain stderr discipline (SPEC_FULL.md Ambient
// Stack: no structured logging library).
type Session struct {
	log *log.Logger
}

// NewSession returns a Session logging to stderr with no timestamp
// prefix, matching the teacher's "print to stderr and stop" style.
func NewSession() *Session {
	return &Session{log: log.New(os.Stderr, "", 0)}
}

// Logf writes one progress line.
func (s *Session) Logf(format string, args ...interface{}) {
	s.log.Printf(format, args...)
}

// Fail panics with a typed *Error; nothing is retried or recovered here,
// per spec.md §7.
func (s *Session) Fail(kind Kind, format string, args ...interface{}) {
	panic(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

// Recover turns a panicked *Error into (ok=false, err); any other panic
// value is re-raised, since only diag.Fail's own panics are part of this
// contract.
func Recover() (err *Error, ok bool) {
	r := recover()
	if r == nil {
		return nil, true
	}
	if e, isErr := r.(*Error); isErr {
		return e, false
	}
	panic(r)
}

// ExitCode maps a diagnostic kind to a process exit status, spec.md §7.
func ExitCode(k Kind) int {
	switch k {
	case IO:
		return 2
	case LimitExceeded:
		return 3
	case Unsupported:
		return 4
	default:
		return 1
	}
}
