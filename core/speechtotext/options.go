// Package speechtotext holds the provider-neutral transcription types.
package speechtotext

// EventType distinguishes interim transcript snapshots from the terminal
// transcript of an utterance.
type EventType string

const (
	EventPartial EventType = "partial"
	EventFinal   EventType = "final"
)

// Event is one element of an incremental transcription sequence. Only a
// final event carries the complete utterance text.
type Event struct {
	Type EventType
	Text string
}

type TranscriptionOptions struct {
	Language   string
	Model      string
	SampleRate int
	Encoding   string
}

type TranscriptionOption func(*TranscriptionOptions)

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Language = language
	}
}

func WithModel(model string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Model = model
	}
}

func WithEncoding(encoding string, sampleRate int) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Encoding = encoding
		o.SampleRate = sampleRate
	}
}
