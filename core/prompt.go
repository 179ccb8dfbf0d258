package orchestration

import (
	"fmt"
	"strings"

	"github.com/polyglotgames/dialogue-core/core/llms"
)

const defaultHistoryWindow = 10

// buildDialoguePrompt assembles the in-character system prompt plus the
// trailing history window for one turn. The snapshot is the turn's frozen
// view; nothing here reads live state.
func buildDialoguePrompt(profile *CharacterProfile, snapshot *ContextSnapshot, language string, historyWindow int, transcript string) llms.Prompt {
	var system strings.Builder

	fmt.Fprintf(&system, "You are %s, a character in an immersive %s-language world.\n", profile.Name, language)
	fmt.Fprintf(&system, "Personality: %s\n", profile.Personality)
	if profile.Backstory != "" {
		fmt.Fprintf(&system, "Backstory: %s\n", profile.Backstory)
	}

	system.WriteString("\nCurrent situation:\n")
	if snapshot.Scene != "" {
		fmt.Fprintf(&system, "- Scene: %s\n", snapshot.Scene)
	}
	if snapshot.HeldObject != "" {
		fmt.Fprintf(&system, "- The player is holding: %s\n", snapshot.HeldObject)
	}
	if len(snapshot.NearbyCharacters) > 0 {
		fmt.Fprintf(&system, "- Also nearby: %s\n", strings.Join(snapshot.NearbyCharacters, ", "))
	}
	if snapshot.ActiveQuest != "" {
		fmt.Fprintf(&system, "- Active quest: %s\n", snapshot.ActiveQuest)
	}
	fmt.Fprintf(&system, "- Your relationship with the player: %s (%.2f on a -1 to 1 scale)\n",
		describeRelationship(snapshot.Relationship), ClampRelationship(snapshot.Relationship))

	system.WriteString("\nRules:\n")
	fmt.Fprintf(&system, "- Speak only %s. Never translate or switch languages.\n", language)
	fmt.Fprintf(&system, "- Match your vocabulary and grammar to a %s learner.\n", languageLevel(profile, snapshot))
	if profile.EmotionalTone != "" {
		fmt.Fprintf(&system, "- Keep a %s tone.\n", profile.EmotionalTone)
	}
	system.WriteString("- Stay in character. Do not mention being an AI or a game character.\n")
	system.WriteString("- Keep replies short and conversational, one to three sentences.\n")
	system.WriteString("- If the player makes language mistakes, understand the intent and respond naturally. Do not correct them.\n")

	return llms.Prompt{
		System:  system.String(),
		History: historyMessages(snapshot.Turns, historyWindow),
		User:    transcript,
	}
}

// historyMessages maps the trailing window of remembered turns onto chat
// roles, oldest first.
func historyMessages(turns []TurnRecord, window int) []llms.Message {
	if window < 1 {
		window = defaultHistoryWindow
	}
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	messages := make([]llms.Message, 0, len(turns))
	for _, turn := range turns {
		role := llms.RoleUser
		if turn.Speaker == SpeakerCharacter {
			role = llms.RoleAssistant
		}
		messages = append(messages, llms.Message{Role: role, Content: turn.Text})
	}
	return messages
}

func describeRelationship(score float64) string {
	switch {
	case score <= -0.5:
		return "hostile"
	case score < -0.1:
		return "wary"
	case score <= 0.1:
		return "neutral"
	case score < 0.5:
		return "friendly"
	default:
		return "close"
	}
}

func languageLevel(profile *CharacterProfile, snapshot *ContextSnapshot) string {
	if snapshot.Proficiency != "" {
		return snapshot.Proficiency
	}
	if profile.LanguageLevel != "" {
		return profile.LanguageLevel
	}
	return "B1"
}

// buildCorrectionPrompt asks for a structured error analysis of one
// utterance. The analysis sees the same history window the character does so
// it can judge context-dependent errors.
func buildCorrectionPrompt(snapshot *ContextSnapshot, language string, historyWindow int, transcript string) llms.Prompt {
	var system strings.Builder

	fmt.Fprintf(&system, "You are a %s language teacher reviewing a learner's utterance from a spoken conversation.\n", language)
	fmt.Fprintf(&system, "The learner's level is %s.\n", proficiencyOrDefault(snapshot))
	system.WriteString("Identify genuine language errors: wrong conjugations, gender agreement, tense, vocabulary misuse, or likely pronunciation problems visible in the transcript.\n")
	system.WriteString("Ignore casual register, fillers, and transcription artifacts. An utterance with no real errors gets an empty list.\n")
	system.WriteString("For each error give the original fragment, the corrected form, a one-sentence explanation in English, and a severity from 1 (cosmetic) to 5 (blocks understanding).\n")

	return llms.Prompt{
		System:  system.String(),
		History: historyMessages(snapshot.Turns, historyWindow),
		User:    transcript,
	}
}

func proficiencyOrDefault(snapshot *ContextSnapshot) string {
	if snapshot.Proficiency != "" {
		return snapshot.Proficiency
	}
	return "B1"
}
