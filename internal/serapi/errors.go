// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package serapi

import (
	"errors"
	"fmt"
	"time"
)

// ErrDeadSession reports use of a session whose prover process has exited
// or been shut down.
var ErrDeadSession = errors.New("serapi: session is dead")

// ErrOutOfRange reports a checkpoint operation that exceeds the bounds of
// the checkpoint stack.
var ErrOutOfRange = errors.New("serapi: checkpoint index out of range")

// ErrUnsupportedOption reports a prover option the resolved toolchain
// version cannot express, neither as a sertop argument nor as a startup
// command.
var ErrUnsupportedOption = errors.New("serapi: option not supported by this prover version")

// CoqExn is an error raised by the prover itself: the command was delivered,
// parsed, and rejected. The session survives a CoqExn, so callers can roll
// back to a checkpoint or surface the message.
type CoqExn struct {
	// Message is the prover's printed error message.
	Message string

	// Sexp is the serialized exception payload in full, including the
	// location, backtrace, and exception constructor.
	Sexp string
}

func (e *CoqExn) Error() string {
	return fmt.Sprintf("serapi: prover error: %s", e.Message)
}

// ProtocolError reports a response that violates the framing or shape the
// session depends on. A protocol error is fatal: the session is marked dead
// and must be shut down.
type ProtocolError struct {
	// Reason describes the violated expectation.
	Reason string

	// Unit is the offending response unit, empty when the framing itself
	// broke.
	Unit string
}

func (e *ProtocolError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("serapi: protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("serapi: protocol error: %s in %q", e.Reason, e.Unit)
}

// TimeoutError reports that the prover did not complete a command within
// the session deadline. The prover's state is unknown afterwards, so the
// session is marked dead and must be shut down.
type TimeoutError struct {
	// Cmd is the protocol command that timed out.
	Cmd string

	// After is the deadline that elapsed.
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("serapi: no reply within %v to %s", e.After, abbreviate(e.Cmd))
}

// abbreviate shortens long commands for error messages and logs.
func abbreviate(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
