package orchestration

import (
	"strings"
	"testing"
	"time"

	"github.com/polyglotgames/dialogue-core/core/llms"
)

func TestBuildDialoguePromptCarriesWorldContext(t *testing.T) {
	profile := &CharacterProfile{
		Name:          "Marie",
		Personality:   "warm, slightly nosy baker",
		Backstory:     "Has run the boulangerie for thirty years.",
		EmotionalTone: "cheerful",
	}
	snapshot := &ContextSnapshot{
		Proficiency:      "A2",
		Scene:            "boulangerie",
		HeldObject:       "panier",
		NearbyCharacters: []string{"pierre"},
		ActiveQuest:      "acheter du pain",
		Relationship:     0.6,
	}

	prompt := buildDialoguePrompt(profile, snapshot, "fr", 10, "Bonjour madame")

	for _, fragment := range []string{"Marie", "boulangerie", "panier", "pierre", "acheter du pain", "A2", "cheerful", "close"} {
		if !strings.Contains(prompt.System, fragment) {
			t.Fatalf("system prompt missing %q:\n%s", fragment, prompt.System)
		}
	}
	if prompt.User != "Bonjour madame" {
		t.Fatalf("unexpected user message %q", prompt.User)
	}
}

func TestBuildDialoguePromptClampsRelationship(t *testing.T) {
	profile := &CharacterProfile{Name: "Marie"}
	snapshot := &ContextSnapshot{Relationship: 3.5}

	prompt := buildDialoguePrompt(profile, snapshot, "fr", 10, "Salut")
	if !strings.Contains(prompt.System, "1.00") {
		t.Fatalf("relationship not clamped in prompt:\n%s", prompt.System)
	}
}

func TestHistoryMessagesAppliesWindow(t *testing.T) {
	var turns []TurnRecord
	for i := 0; i < 25; i++ {
		speaker := SpeakerParticipant
		if i%2 == 1 {
			speaker = SpeakerCharacter
		}
		turns = append(turns, TurnRecord{Speaker: speaker, Text: "ligne", Timestamp: time.Now()})
	}

	messages := historyMessages(turns, 10)
	if len(messages) != 10 {
		t.Fatalf("expected 10 history messages, got %d", len(messages))
	}

	// The window keeps the most recent turns; index 15 was a character line.
	if messages[0].Role != llms.RoleAssistant {
		t.Fatalf("window did not keep the tail of the history")
	}
}

func TestHistoryMessagesMapsSpeakersToRoles(t *testing.T) {
	turns := []TurnRecord{
		{Speaker: SpeakerParticipant, Text: "question"},
		{Speaker: SpeakerCharacter, Text: "réponse"},
	}

	messages := historyMessages(turns, 10)
	if messages[0].Role != llms.RoleUser || messages[1].Role != llms.RoleAssistant {
		t.Fatalf("unexpected role mapping: %+v", messages)
	}
}

func TestBuildCorrectionPromptMentionsProficiency(t *testing.T) {
	snapshot := &ContextSnapshot{Proficiency: "B1"}

	prompt := buildCorrectionPrompt(snapshot, "fr", 10, "je mange hier")
	if !strings.Contains(prompt.System, "B1") {
		t.Fatalf("correction prompt missing proficiency:\n%s", prompt.System)
	}
	if prompt.User != "je mange hier" {
		t.Fatalf("unexpected user message %q", prompt.User)
	}
}
