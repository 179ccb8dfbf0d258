package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/polyglotgames/dialogue-core/core/llms"
)

const (
	reviewTriggerActivity = 15 * time.Minute
	reviewExerciseCount   = 5
	reviewTopCategories   = 3
)

// ReviewExercise is one generated practice item targeting the participant's
// recent mistakes.
type ReviewExercise struct {
	Type        string   `json:"type" jsonschema:"enum=fill_in_blank,enum=multiple_choice,enum=correction,enum=translation" jsonschema_description:"Exercise format"`
	Prompt      string   `json:"prompt" jsonschema_description:"The exercise question shown to the learner"`
	Choices     []string `json:"choices,omitempty" jsonschema_description:"Answer options, only for multiple_choice"`
	Answer      string   `json:"answer" jsonschema_description:"The expected correct answer"`
	Explanation string   `json:"explanation" jsonschema_description:"Why the answer is correct, in English"`
	Category    string   `json:"category" jsonschema_description:"The mistake category this exercise practices"`
}

type reviewExerciseSet struct {
	Exercises []ReviewExercise `json:"exercises" jsonschema_description:"Exactly five exercises mixing the formats"`
}

// ReviewSession is a generated practice set built from the participant's
// weakest categories and most recent mistakes.
type ReviewSession struct {
	ID            string
	ParticipantID string
	Categories    []CategoryCount
	Exercises     []ReviewExercise
	CreatedAt     time.Time
}

// ShouldTriggerReview reports whether enough active practice time has
// accumulated since the last review to offer a new one.
func ShouldTriggerReview(activeSince time.Time, now time.Time) bool {
	return !activeSince.IsZero() && now.Sub(activeSince) >= reviewTriggerActivity
}

// GenerateReviewSession builds a practice set from the participant's top
// mistake categories and the entries behind them. It fails when the
// participant has no recorded mistakes to practice.
func (o *Orchestrator) GenerateReviewSession(ctx context.Context, participantID, language string) (*ReviewSession, error) {
	if o == nil || o.generator == nil {
		return nil, fmt.Errorf("no dialogue generator configured")
	}
	if o.mistakes == nil {
		return nil, fmt.Errorf("no mistake repository configured")
	}
	if language == "" {
		language = o.targetLanguage
	}

	ctx, span := tracer.Start(ctx, "orchestration.review_session")
	defer span.End()

	categories, err := o.mistakes.TopCategories(ctx, participantID, reviewTopCategories)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read mistake categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("no recorded mistakes for participant %s", participantID)
	}

	entries, err := o.mistakes.RecentEntries(ctx, participantID, time.Now().Add(-reviewTriggerActivity))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read recent mistakes: %w", err)
	}

	prompt := buildReviewPrompt(language, categories, entries)

	var set reviewExerciseSet
	if err := o.generator.GenerateStructured(ctx, prompt, &set); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to generate review exercises: %w", err)
	}
	if len(set.Exercises) > reviewExerciseCount {
		set.Exercises = set.Exercises[:reviewExerciseCount]
	}

	return &ReviewSession{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		Categories:    categories,
		Exercises:     set.Exercises,
		CreatedAt:     time.Now(),
	}, nil
}

func buildReviewPrompt(language string, categories []CategoryCount, entries []MistakeEntry) llms.Prompt {
	var system strings.Builder

	fmt.Fprintf(&system, "You are a %s language teacher creating a short review session for one learner.\n", language)
	system.WriteString("Create exactly five exercises mixing fill_in_blank, multiple_choice, correction, and translation formats.\n")
	system.WriteString("Target the learner's weakest categories, weighted by how often each occurred:\n")
	for _, category := range categories {
		fmt.Fprintf(&system, "- %s (%d occurrences)\n", category.Category, category.Count)
	}
	system.WriteString("Base exercises on the learner's own mistakes where possible, but vary the vocabulary so answers cannot be memorized.\n")

	var user strings.Builder
	if len(entries) == 0 {
		user.WriteString("No individual mistakes recorded recently; generate from the categories alone.")
	} else {
		user.WriteString("Recent mistakes:\n")
		for _, entry := range entries {
			fmt.Fprintf(&user, "- [%s] said %q, should be %q (%s)\n",
				entry.Category, entry.Original, entry.Correction, entry.Explanation)
		}
	}

	return llms.Prompt{System: system.String(), User: user.String()}
}
