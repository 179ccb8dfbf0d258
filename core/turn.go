package orchestration

import (
	"time"
)

// TurnStatus is the terminal state of a turn.
type TurnStatus string

const (
	TurnCompleted TurnStatus = "completed"
	TurnCancelled TurnStatus = "cancelled"
	TurnFailed    TurnStatus = "failed"
)

// TurnInput selects the audio mode of a turn. Exactly one field should be
// set; Transcript wins over Audio, Audio over AudioStream.
type TurnInput struct {
	// Transcript skips transcription entirely. Used by text-only clients
	// and the debug endpoint.
	Transcript string

	// Audio is a complete recorded utterance for batch transcription.
	Audio []byte

	// AudioStream yields raw audio chunks as the participant speaks. The
	// sequence must end for the turn to proceed to generation.
	AudioStream func(yield func([]byte) bool)
}

// Turn is the record of one completed exchange. All fields are settled by
// the time RunTurn returns; only the correction future may still be pending.
type Turn struct {
	ID            string
	ParticipantID string
	CharacterID   string

	Transcript string
	Response   string

	Status TurnStatus
	Err    error

	StartedAt time.Time
	EndedAt   time.Time

	correction chan *CorrectionReport
}

// CorrectionReport is the outcome of the correction side path for one turn.
// An empty Entries slice means the utterance was judged clean or the side
// path degraded.
type CorrectionReport struct {
	TurnID        string
	ParticipantID string
	Entries       []MistakeEntry
}

// Correction returns a channel that receives exactly one report once the
// side path settles, then is closed. The side path may outlive RunTurn, so
// receiving may block briefly after the primary path is done.
func (t *Turn) Correction() <-chan *CorrectionReport {
	return t.correction
}

func newTurn(id, participantID, characterID string) *Turn {
	return &Turn{
		ID:            id,
		ParticipantID: participantID,
		CharacterID:   characterID,
		StartedAt:     time.Now(),
		correction:    make(chan *CorrectionReport, 1),
	}
}

func (t *Turn) settleCorrection(report *CorrectionReport) {
	t.correction <- report
	close(t.correction)
}
