// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"errors"
	"fmt"

	"github.com/pdiddy/proof-engine/pkg/types"
)

// ErrOutOfRange reports a rollback request for more commands or sentences
// than have been extracted.
var ErrOutOfRange = errors.New("extract: rollback out of range")

// InconsistencyError reports bookkeeping that contradicts the session,
// such as a proof concluding that was never opened. It points at either an
// unsupported plugin behavior or a tracking defect.
type InconsistencyError struct {
	Reason string
}

func (e *InconsistencyError) Error() string {
	return "extract: inconsistency: " + e.Reason
}

func inconsistencyf(format string, args ...interface{}) error {
	return &InconsistencyError{Reason: fmt.Sprintf(format, args...)}
}

// SentenceError wraps a failure with the sentence whose extraction caused
// it. The prover's own error remains reachable through Unwrap.
type SentenceError struct {
	Text     string
	Location types.Loc
	Err      error
}

func (e *SentenceError) Error() string {
	return fmt.Sprintf("extract %s (%q): %s", e.Location, e.Text, e.Err)
}

func (e *SentenceError) Unwrap() error { return e.Err }
