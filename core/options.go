package orchestration

import (
	"time"

	"github.com/polyglotgames/dialogue-core/core/eventbus"
)

// OrchestratorOption configures an Orchestrator at construction time.
type OrchestratorOption func(*Orchestrator)

// WithSpeechToText sets the transcription backend.
func WithSpeechToText(stt SpeechToText) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speechToText = stt
	}
}

// WithDialogueGenerator sets the language-generation backend used for both
// the character response stream and structured side calls.
func WithDialogueGenerator(gen DialogueGenerator) OrchestratorOption {
	return func(o *Orchestrator) {
		o.generator = gen
	}
}

// WithSpeechSynthesizer sets the text-to-speech backend.
func WithSpeechSynthesizer(tts SpeechSynthesizer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.synthesizer = tts
	}
}

// WithContextStore sets the durable conversational-state store.
func WithContextStore(store ContextStore) OrchestratorOption {
	return func(o *Orchestrator) {
		o.contextStore = store
	}
}

// WithProfileRepository sets the character profile and relationship source.
func WithProfileRepository(profiles ProfileRepository) OrchestratorOption {
	return func(o *Orchestrator) {
		o.profiles = profiles
	}
}

// WithMistakeRepository sets the append-only mistake log. Without one the
// correction path still runs but detections are only published, not persisted.
func WithMistakeRepository(mistakes MistakeRepository) OrchestratorOption {
	return func(o *Orchestrator) {
		o.mistakes = mistakes
	}
}

// WithEventBus sets the bus correction and turn lifecycle events are
// published on.
func WithEventBus(bus *eventbus.Bus) OrchestratorOption {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// WithHistoryWindow bounds how many remembered turns enter the dialogue
// prompt. Values below 1 keep the default.
func WithHistoryWindow(turns int) OrchestratorOption {
	return func(o *Orchestrator) {
		if turns >= 1 {
			o.historyWindow = turns
		}
	}
}

// WithSentenceBuffering overrides the sentence grouping configuration.
func WithSentenceBuffering(config BufferingConfig) OrchestratorOption {
	return func(o *Orchestrator) {
		o.buffering = config.withDefaults()
	}
}

// WithCorrectionTimeout bounds how long the correction side path may run past
// the primary path before it is abandoned.
func WithCorrectionTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.correctionTimeout = timeout
		}
	}
}

// WithTargetLanguage sets the language participants practice in. It is the
// fallback when a context snapshot carries no language of its own.
func WithTargetLanguage(language string) OrchestratorOption {
	return func(o *Orchestrator) {
		if language != "" {
			o.targetLanguage = language
		}
	}
}

// TurnOptions carry the per-turn delivery callbacks. Callbacks are invoked
// synchronously from the turn's pipeline goroutines, so they should hand off
// to the transport quickly.
type TurnOptions struct {
	onInterimTranscript func(text string)
	onTranscript        func(text string)
	onResponseFragment  func(fragment string)
	onSentence          func(sentence string)
	onAudio             func(chunk []byte)
	onAudioEnded        func()

	portCallTimeout time.Duration
}

type TurnOption func(*TurnOptions)

func newTurnOptions(opts ...TurnOption) *TurnOptions {
	options := &TurnOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithInterimTranscriptCallback delivers provisional transcripts while the
// participant is still speaking. Only meaningful for streaming audio input.
func WithInterimTranscriptCallback(callback func(text string)) TurnOption {
	return func(o *TurnOptions) {
		o.onInterimTranscript = callback
	}
}

// WithTranscriptCallback delivers the final transcript once, before
// generation starts.
func WithTranscriptCallback(callback func(text string)) TurnOption {
	return func(o *TurnOptions) {
		o.onTranscript = callback
	}
}

// WithResponseFragmentCallback delivers raw generation fragments as they
// arrive, before sentence assembly.
func WithResponseFragmentCallback(callback func(fragment string)) TurnOption {
	return func(o *TurnOptions) {
		o.onResponseFragment = callback
	}
}

// WithSentenceCallback delivers each assembled sentence as it is handed to
// synthesis.
func WithSentenceCallback(callback func(sentence string)) TurnOption {
	return func(o *TurnOptions) {
		o.onSentence = callback
	}
}

// WithAudioCallback delivers synthesized audio chunks in sentence order.
func WithAudioCallback(callback func(chunk []byte)) TurnOption {
	return func(o *TurnOptions) {
		o.onAudio = callback
	}
}

// WithAudioEndedCallback fires once after the last audio chunk of the turn.
func WithAudioEndedCallback(callback func()) TurnOption {
	return func(o *TurnOptions) {
		o.onAudioEnded = callback
	}
}

// WithPortCallTimeout bounds each individual backend call within the turn.
// Zero means no per-call bound beyond the turn context.
func WithPortCallTimeout(timeout time.Duration) TurnOption {
	return func(o *TurnOptions) {
		o.portCallTimeout = timeout
	}
}
