// Package orchestration coordinates one spoken dialogue turn between a
// participant and an in-world character: audio in, transcription, concurrent
// correction analysis and character response generation, sentence assembly,
// and speech synthesis back out.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/polyglotgames/dialogue-core/core/eventbus"
	"github.com/polyglotgames/dialogue-core/core/events"
	"github.com/polyglotgames/dialogue-core/core/speechtotext"
)

// Bus topics the orchestrator publishes on.
const (
	TopicCorrections eventbus.Topic = "corrections"
	TopicTurns       eventbus.Topic = "turns"
	TopicWorld       eventbus.Topic = "world"
)

// Orchestrator runs dialogue turns. It is safe for concurrent use across
// sessions; within one session turns are serialized by the busy rule.
type Orchestrator struct {
	speechToText SpeechToText
	generator    DialogueGenerator
	synthesizer  SpeechSynthesizer

	contextStore ContextStore
	profiles     ProfileRepository
	mistakes     MistakeRepository
	bus          *eventbus.Bus

	historyWindow     int
	buffering         BufferingConfig
	correctionTimeout time.Duration
	targetLanguage    string

	sessions *sessionRegistry
}

func New(opts ...OrchestratorOption) (*Orchestrator, error) {
	orchestrator := &Orchestrator{
		historyWindow:     defaultHistoryWindow,
		buffering:         BufferingConfig{}.withDefaults(),
		correctionTimeout: defaultCorrectionTimeout,
		targetLanguage:    "fr",
		sessions:          newSessionRegistry(),
	}

	for _, opt := range opts {
		opt(orchestrator)
	}

	if orchestrator.generator == nil {
		return nil, fmt.Errorf("a dialogue generator is required")
	}
	if orchestrator.synthesizer == nil {
		return nil, fmt.Errorf("a speech synthesizer is required")
	}
	if orchestrator.contextStore == nil {
		return nil, fmt.Errorf("a context store is required")
	}
	if orchestrator.profiles == nil {
		return nil, fmt.Errorf("a profile repository is required")
	}

	return orchestrator, nil
}

// Bus returns the event bus the orchestrator publishes on, nil when none is
// configured.
func (o *Orchestrator) Bus() *eventbus.Bus {
	if o == nil {
		return nil
	}
	return o.bus
}

// Session returns the session for a (participant, character) pair, creating
// it on first use.
func (o *Orchestrator) Session(participantID, characterID string) *Session {
	if o == nil {
		return nil
	}
	return o.sessions.get(participantID, characterID)
}

// EndSession drops the session and cancels its in-flight turn, if any.
func (o *Orchestrator) EndSession(participantID, characterID string) {
	if o == nil {
		return
	}
	if session := o.sessions.remove(participantID, characterID); session != nil {
		session.CancelTurn()
	}
}

// RunTurn executes one full turn on the session and blocks until the primary
// path (transcription, generation, synthesis) has settled. The correction
// side path may still be running when RunTurn returns; its outcome arrives on
// the returned turn's Correction channel.
//
// A second RunTurn on the same session while one is in flight fails with
// ErrSessionBusy.
func (o *Orchestrator) RunTurn(ctx context.Context, session *Session, input TurnInput, opts ...TurnOption) (*Turn, error) {
	if o == nil {
		return nil, fmt.Errorf("orchestrator is not initialized")
	}
	if session == nil {
		return nil, fmt.Errorf("session is required")
	}

	turnCtx, cancelTurn := context.WithCancel(ctx)
	if err := session.beginTurn(cancelTurn); err != nil {
		cancelTurn()
		return nil, err
	}

	turn := newTurn(uuid.NewString(), session.ParticipantID(), session.CharacterID())

	turnCtx, span := tracer.Start(turnCtx, "orchestration.turn")
	span.SetAttributes(
		attribute.String("turn.id", turn.ID),
		attribute.String("participant.id", turn.ParticipantID),
		attribute.String("character.id", turn.CharacterID),
	)

	options := newTurnOptions(opts...)
	correctionDone := make(chan struct{})
	correctionStarted := false

	// The side path owns turnCtx after RunTurn returns; it is cancelled
	// once the side path settles, or immediately when it never started.
	finish := func() {
		span.End()
		session.endTurn()
		if correctionStarted {
			go func() {
				<-correctionDone
				cancelTurn()
			}()
		} else {
			turn.settleCorrection(&CorrectionReport{TurnID: turn.ID, ParticipantID: turn.ParticipantID})
			cancelTurn()
		}
	}

	fail := func(err *TurnError) (*Turn, error) {
		turn.Status = TurnFailed
		turn.Err = err
		turn.EndedAt = time.Now()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(err.Kind))
		if o.bus != nil {
			o.bus.Publish(TopicTurns, events.NewTurnFailed(turn.ID, err.Error()))
		}
		finish()
		return turn, err
	}

	snapshot, profile, err := o.loadTurnContext(turnCtx, session, options)
	if err != nil {
		return fail(newTurnError(FailureStore, err))
	}

	language := snapshot.Language
	if language == "" {
		language = o.targetLanguage
	}

	transcript, err := o.transcribe(turnCtx, input, language, options)
	if err != nil {
		if turnCtx.Err() != nil {
			return o.cancelled(turn, finish)
		}
		return fail(newTurnError(FailureTranscription, err))
	}
	turn.Transcript = transcript

	if transcript == "" {
		// Nothing usable was said. The turn settles without generation
		// and the session frees up immediately.
		turn.Status = TurnCompleted
		turn.EndedAt = time.Now()
		finish()
		return turn, nil
	}

	if options.onTranscript != nil {
		options.onTranscript(transcript)
	}

	correctionStarted = true
	go func() {
		defer close(correctionDone)
		o.runCorrection(turnCtx, turn, snapshot, language, transcript)
	}()

	prompt := buildDialoguePrompt(profile, snapshot, language, o.historyWindow, transcript)
	pipeline := &responsePipeline{
		generator:   o.generator,
		synthesizer: o.synthesizer,
		buffer:      newSentenceBuffer(o.buffering),
		options:     options,
		voice:       profile.Voice,
	}

	response, err := pipeline.run(turnCtx, prompt)
	turn.Response = response
	if err != nil {
		if turnCtx.Err() != nil {
			return o.cancelled(turn, finish)
		}
		var turnErr *TurnError
		if !errors.As(err, &turnErr) {
			turnErr = newTurnError(FailureGeneration, err)
		}
		return fail(turnErr)
	}

	o.recordExchange(turnCtx, turn)

	turn.Status = TurnCompleted
	turn.EndedAt = time.Now()
	if o.bus != nil {
		o.bus.Publish(TopicTurns, events.NewTurnCompleted(
			turn.ID, turn.ParticipantID, turn.CharacterID, turn.Transcript, turn.Response,
		))
	}
	finish()
	return turn, nil
}

func (o *Orchestrator) cancelled(turn *Turn, finish func()) (*Turn, error) {
	turn.Status = TurnCancelled
	turn.Err = context.Canceled
	turn.EndedAt = time.Now()
	if o.bus != nil {
		o.bus.Publish(TopicTurns, events.NewTurnCancelled(turn.ID))
	}
	finish()
	return turn, nil
}

// loadTurnContext reads the snapshot and profile the turn will work from.
// Both reads are fatal; a turn without context or character cannot proceed.
func (o *Orchestrator) loadTurnContext(ctx context.Context, session *Session, options *TurnOptions) (*ContextSnapshot, *CharacterProfile, error) {
	callCtx, done := o.portCallContext(ctx, options)
	defer done()

	snapshot, err := o.contextStore.Snapshot(callCtx, session.ParticipantID(), session.CharacterID())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read context snapshot: %w", err)
	}
	snapshot = snapshot.Clone()

	profile, err := o.profiles.Profile(callCtx, session.CharacterID())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read character profile: %w", err)
	}

	return snapshot, profile, nil
}

// transcribe resolves the turn input to a final transcript according to its
// mode. Streaming mode relays interim transcripts to the turn callback.
func (o *Orchestrator) transcribe(ctx context.Context, input TurnInput, language string, options *TurnOptions) (string, error) {
	if input.Transcript != "" {
		return input.Transcript, nil
	}

	if o.speechToText == nil {
		return "", fmt.Errorf("no speech-to-text backend configured")
	}

	if input.Audio != nil {
		callCtx, done := o.portCallContext(ctx, options)
		defer done()

		transcript, err := o.speechToText.TranscribeBatch(callCtx, input.Audio, speechtotext.WithLanguage(language))
		if err != nil {
			return "", fmt.Errorf("batch transcription failed: %w", err)
		}
		return transcript, nil
	}

	if input.AudioStream == nil {
		return "", nil
	}

	var final string
	for event, err := range o.speechToText.TranscribeStream(ctx, input.AudioStream, speechtotext.WithLanguage(language)) {
		if err != nil {
			return "", fmt.Errorf("streaming transcription failed: %w", err)
		}

		switch event.Type {
		case speechtotext.EventPartial:
			if options.onInterimTranscript != nil {
				options.onInterimTranscript(event.Text)
			}
		case speechtotext.EventFinal:
			final = event.Text
		}
	}
	return final, nil
}

// recordExchange appends both sides of the turn to durable history. Failures
// degrade to a log line; the response was already delivered.
func (o *Orchestrator) recordExchange(ctx context.Context, turn *Turn) {
	now := time.Now()
	records := []TurnRecord{
		{Speaker: SpeakerParticipant, Text: turn.Transcript, Timestamp: now},
	}
	if turn.Response != "" {
		records = append(records, TurnRecord{Speaker: SpeakerCharacter, Text: turn.Response, Timestamp: now})
	}

	if err := o.contextStore.AppendTurns(ctx, turn.ParticipantID, turn.CharacterID, records...); err != nil {
		logger.ErrorContext(ctx, "failed to append turn records",
			"turn_id", turn.ID, "participant_id", turn.ParticipantID, "error", err)
	}
}

func (o *Orchestrator) portCallContext(ctx context.Context, options *TurnOptions) (context.Context, context.CancelFunc) {
	if options.portCallTimeout > 0 {
		return context.WithTimeout(ctx, options.portCallTimeout)
	}
	return ctx, func() {}
}
