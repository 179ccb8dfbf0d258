package orchestration

import (
	"errors"
	"fmt"
)

// ErrSessionBusy is returned when a turn is requested on a session that
// already has one in flight. The request is rejected, never queued.
var ErrSessionBusy = errors.New("session already has a turn in flight")

// FailureKind classifies which stage made a turn fail.
type FailureKind string

const (
	FailureTranscription FailureKind = "transcription"
	FailureGeneration    FailureKind = "generation"
	FailureSynthesis     FailureKind = "synthesis"
	FailureStore         FailureKind = "store"
)

// TurnError carries the terminal error of a failed turn together with the
// stage that produced it. Audio already delivered before the failure is not
// retracted.
type TurnError struct {
	Kind FailureKind
	Err  error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

func newTurnError(kind FailureKind, err error) *TurnError {
	return &TurnError{Kind: kind, Err: err}
}
