package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	orchestration "github.com/polyglotgames/dialogue-core/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestProfileRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	profile := orchestration.CharacterProfile{
		ID:            "marie",
		Name:          "Marie",
		Personality:   "warm baker",
		Backstory:     "Thirty years behind the counter.",
		LanguageLevel: "A2",
		EmotionalTone: "cheerful",
		Voice:         "voice-1",
	}
	require.NoError(t, store.UpsertProfile(ctx, profile))

	loaded, err := store.Profile(ctx, "marie")
	require.NoError(t, err)
	require.Equal(t, &profile, loaded)

	// Upsert replaces in place.
	profile.Personality = "tired baker"
	require.NoError(t, store.UpsertProfile(ctx, profile))

	loaded, err = store.Profile(ctx, "marie")
	require.NoError(t, err)
	require.Equal(t, "tired baker", loaded.Personality)
}

func TestProfileUnknownCharacter(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Profile(context.Background(), "nobody")
	require.Error(t, err)
}

func TestAdjustRelationshipClamps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertProfile(ctx, orchestration.CharacterProfile{ID: "marie", Name: "Marie", Personality: "warm"}))

	score, err := store.AdjustRelationship(ctx, "marie", "player-1", 0.4)
	require.NoError(t, err)
	require.InDelta(t, 0.4, score, 1e-9)

	score, err = store.AdjustRelationship(ctx, "marie", "player-1", 0.9)
	require.NoError(t, err)
	require.Equal(t, 1.0, score)

	score, err = store.AdjustRelationship(ctx, "marie", "player-1", -3)
	require.NoError(t, err)
	require.Equal(t, -1.0, score)

	stored, err := store.Relationship(ctx, "marie", "player-1")
	require.NoError(t, err)
	require.Equal(t, -1.0, stored)
}

func TestRelationshipDefaultsToZero(t *testing.T) {
	store := newTestStore(t)

	score, err := store.Relationship(context.Background(), "marie", "player-1")
	require.NoError(t, err)
	require.Equal(t, 0.0, score)
}

func mistake(participantID, category string, severity int, createdAt time.Time) orchestration.MistakeEntry {
	return orchestration.MistakeEntry{
		ID:            uuid.NewString(),
		TurnID:        uuid.NewString(),
		ParticipantID: participantID,
		Category:      category,
		Original:      "je mange hier",
		Correction:    "j'ai mangé hier",
		Explanation:   "Past events take passé composé.",
		Severity:      severity,
		CreatedAt:     createdAt,
	}
}

func TestMistakeLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	entries := []orchestration.MistakeEntry{
		mistake("player-1", "tense", 3, now.Add(-30*time.Minute)),
		mistake("player-1", "tense", 2, now.Add(-10*time.Minute)),
		mistake("player-1", "vocabulary", 1, now.Add(-5*time.Minute)),
		mistake("player-2", "gender_agreement", 4, now),
	}
	require.NoError(t, store.AppendEntries(ctx, "player-1", entries[:3]))
	require.NoError(t, store.AppendEntries(ctx, "player-2", entries[3:]))

	categories, err := store.TopCategories(ctx, "player-1", 3)
	require.NoError(t, err)
	require.Equal(t, []orchestration.CategoryCount{
		{Category: "tense", Count: 2},
		{Category: "vocabulary", Count: 1},
	}, categories)

	recent, err := store.RecentEntries(ctx, "player-1", now.Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "tense", recent[0].Category)
	require.Equal(t, "vocabulary", recent[1].Category)

	// Appending nothing is a no-op.
	require.NoError(t, store.AppendEntries(ctx, "player-1", nil))
}
