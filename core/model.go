package orchestration

import (
	"time"

	"github.com/jinzhu/copier"
)

type Speaker string

const (
	SpeakerParticipant Speaker = "participant"
	SpeakerCharacter   Speaker = "character"
)

// TurnRecord is one remembered exchange line inside a context snapshot.
type TurnRecord struct {
	Speaker   Speaker
	Text      string
	Timestamp time.Time
}

// ContextSnapshot is a borrowed, point-in-time copy of the conversational and
// situational state for one (participant, character) pair. The context store
// owns the durable state; the orchestrator must not assume the copy stays
// fresh across a long generation.
type ContextSnapshot struct {
	ParticipantID string
	CharacterID   string

	Language    string
	Proficiency string

	Turns []TurnRecord

	Scene            string
	HeldObject       string
	NearbyCharacters []string
	ActiveQuest      string

	Relationship float64
}

// Clone returns a deep copy so a turn can keep reading its borrowed snapshot
// while the store moves on.
func (s *ContextSnapshot) Clone() *ContextSnapshot {
	if s == nil {
		return nil
	}

	clone := &ContextSnapshot{}
	if err := copier.CopyWithOption(clone, s, copier.Option{DeepCopy: true}); err != nil {
		shallow := *s
		return &shallow
	}
	return clone
}

// CharacterProfile is immutable for the duration of a session.
type CharacterProfile struct {
	ID            string
	Name          string
	Personality   string
	Backstory     string
	LanguageLevel string
	EmotionalTone string
	Voice         string
}

// MistakeEntry is one detected language error. Entries are immutable once
// written and always reference exactly one turn and one participant.
type MistakeEntry struct {
	ID            string
	TurnID        string
	ParticipantID string

	Category    string
	Original    string
	Correction  string
	Explanation string
	Severity    int

	CreatedAt time.Time
}

type CategoryCount struct {
	Category string
	Count    int
}

// StatePatch describes a partial update to a participant's situational state.
// Nil pointer fields are left untouched by the store.
type StatePatch struct {
	Scene           *string
	HeldObject      *string
	ActiveQuest     *string
	ActiveCharacter *string
	Language        *string
	Position        *[3]float64

	AddNearby    []string
	RemoveNearby []string
	ClearNearby  bool
}

const (
	RelationshipMin = -1.0
	RelationshipMax = 1.0
)

// ClampRelationship bounds a relationship score to [-1, 1]. Scores are never
// stored out of range.
func ClampRelationship(score float64) float64 {
	if score < RelationshipMin {
		return RelationshipMin
	}
	if score > RelationshipMax {
		return RelationshipMax
	}
	return score
}
