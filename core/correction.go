package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/polyglotgames/dialogue-core/core/events"
)

const defaultCorrectionTimeout = 20 * time.Second

// correctionAnalysis is the schema-constrained shape the generator fills in
// for one utterance.
type correctionAnalysis struct {
	Corrections []correctionItem `json:"corrections" jsonschema_description:"Every genuine language error found in the utterance, empty if none"`
}

type correctionItem struct {
	Category    string `json:"category" jsonschema:"enum=verb_conjugation,enum=gender_agreement,enum=tense,enum=vocabulary,enum=pronunciation_flag" jsonschema_description:"Error class"`
	Original    string `json:"original" jsonschema_description:"The erroneous fragment exactly as the learner said it"`
	Correction  string `json:"correction" jsonschema_description:"The corrected fragment"`
	Explanation string `json:"explanation" jsonschema_description:"One-sentence explanation of the error in English"`
	Severity    int    `json:"severity" jsonschema:"minimum=1,maximum=5" jsonschema_description:"1 cosmetic to 5 blocks understanding"`
}

// runCorrection is the side path of a turn. It analyzes the utterance,
// persists detections, publishes one event per detection, and settles the
// turn's correction future. Every failure degrades to an empty report; the
// side path never surfaces an error to the primary path.
func (o *Orchestrator) runCorrection(ctx context.Context, turn *Turn, snapshot *ContextSnapshot, language, transcript string) {
	ctx, span := tracer.Start(ctx, "orchestration.correction")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.correctionTimeout)
	defer cancel()

	report := &CorrectionReport{TurnID: turn.ID, ParticipantID: turn.ParticipantID}
	defer func() { turn.settleCorrection(report) }()

	prompt := buildCorrectionPrompt(snapshot, language, o.historyWindow, transcript)

	var analysis correctionAnalysis
	if err := o.generator.GenerateStructured(ctx, prompt, &analysis); err != nil {
		span.RecordError(err)
		logger.WarnContext(ctx, "correction analysis failed, degrading to empty report",
			"turn_id", turn.ID, "error", err)
		return
	}

	now := time.Now()
	entries := make([]MistakeEntry, 0, len(analysis.Corrections))
	for _, item := range analysis.Corrections {
		if item.Original == "" || item.Correction == "" {
			continue
		}
		entries = append(entries, MistakeEntry{
			ID:            uuid.NewString(),
			TurnID:        turn.ID,
			ParticipantID: turn.ParticipantID,
			Category:      item.Category,
			Original:      item.Original,
			Correction:    item.Correction,
			Explanation:   item.Explanation,
			Severity:      clampSeverity(item.Severity),
			CreatedAt:     now,
		})
	}

	if len(entries) > 0 && o.mistakes != nil {
		if err := o.mistakes.AppendEntries(ctx, turn.ParticipantID, entries); err != nil {
			span.RecordError(err)
			logger.WarnContext(ctx, "failed to persist mistake entries",
				"turn_id", turn.ID, "entries", len(entries), "error", err)
		}
	}

	if o.bus != nil {
		for _, entry := range entries {
			o.bus.Publish(TopicCorrections, events.NewCorrectionDetected(
				entry.TurnID, entry.ParticipantID,
				entry.Category, entry.Original, entry.Correction, entry.Explanation,
				entry.Severity,
			))
		}
	}

	report.Entries = entries
}

// CheckUtterance runs the correction analysis standalone, outside any turn.
// Nothing is persisted or published.
func (o *Orchestrator) CheckUtterance(ctx context.Context, language, proficiency, utterance string) ([]MistakeEntry, error) {
	if o == nil || o.generator == nil {
		return nil, fmt.Errorf("no dialogue generator configured")
	}
	if language == "" {
		language = o.targetLanguage
	}

	ctx, span := tracer.Start(ctx, "orchestration.check_utterance")
	defer span.End()

	snapshot := &ContextSnapshot{Proficiency: proficiency}
	prompt := buildCorrectionPrompt(snapshot, language, o.historyWindow, utterance)

	var analysis correctionAnalysis
	if err := o.generator.GenerateStructured(ctx, prompt, &analysis); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to analyze utterance: %w", err)
	}

	now := time.Now()
	entries := make([]MistakeEntry, 0, len(analysis.Corrections))
	for _, item := range analysis.Corrections {
		entries = append(entries, MistakeEntry{
			ID:          uuid.NewString(),
			Category:    item.Category,
			Original:    item.Original,
			Correction:  item.Correction,
			Explanation: item.Explanation,
			Severity:    clampSeverity(item.Severity),
			CreatedAt:   now,
		})
	}
	return entries, nil
}

func clampSeverity(severity int) int {
	if severity < 1 {
		return 1
	}
	if severity > 5 {
		return 5
	}
	return severity
}
