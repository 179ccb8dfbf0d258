package orchestration

import (
	"context"
	"iter"
	"time"

	"github.com/polyglotgames/dialogue-core/core/llms"
	"github.com/polyglotgames/dialogue-core/core/speechtotext"
	"github.com/polyglotgames/dialogue-core/core/texttospeech"
)

// SpeechToText wraps a transcription service. Streams are finite,
// non-restartable sequences; abandoning one must stop upstream production.
type SpeechToText interface {
	TranscribeBatch(ctx context.Context, audio []byte, opts ...speechtotext.TranscriptionOption) (string, error)
	TranscribeStream(ctx context.Context, audio iter.Seq[[]byte], opts ...speechtotext.TranscriptionOption) iter.Seq2[speechtotext.Event, error]
}

// DialogueGenerator wraps a language-generation service in incremental and
// schema-constrained batch modes.
type DialogueGenerator interface {
	GenerateStream(ctx context.Context, prompt llms.Prompt) iter.Seq2[string, error]
	GenerateStructured(ctx context.Context, prompt llms.Prompt, out any) error
}

// SpeechSynthesizer converts one complete sentence into an incremental audio
// chunk sequence.
type SpeechSynthesizer interface {
	SynthesizeStream(ctx context.Context, sentence string, opts ...texttospeech.SynthesisOption) iter.Seq2[[]byte, error]
}

// ContextStore owns the durable conversational state per (participant,
// character) pair. Snapshot is read once at turn start; AppendTurns is the
// single writer at turn end.
type ContextStore interface {
	Snapshot(ctx context.Context, participantID, characterID string) (*ContextSnapshot, error)
	AppendTurns(ctx context.Context, participantID, characterID string, records ...TurnRecord) error
	UpdateState(ctx context.Context, participantID string, patch StatePatch) error
}

// ProfileRepository provides read access to character definitions and the
// clamped relationship score.
type ProfileRepository interface {
	Profile(ctx context.Context, characterID string) (*CharacterProfile, error)
	AdjustRelationship(ctx context.Context, characterID, participantID string, delta float64) (float64, error)
}

// MistakeRepository is the append-only log of detected language errors.
type MistakeRepository interface {
	AppendEntries(ctx context.Context, participantID string, entries []MistakeEntry) error
	TopCategories(ctx context.Context, participantID string, limit int) ([]CategoryCount, error)
	RecentEntries(ctx context.Context, participantID string, since time.Time) ([]MistakeEntry, error)
}
