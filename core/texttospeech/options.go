// Package texttospeech holds the provider-neutral synthesis types.
package texttospeech

type SynthesisOptions struct {
	Voice        string
	Model        string
	OutputFormat string
}

type SynthesisOption func(*SynthesisOptions)

// WithVoice selects the provider voice identity for the synthesized speech.
func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.Voice = voice
	}
}

func WithModel(model string) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.Model = model
	}
}

func WithOutputFormat(format string) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.OutputFormat = format
	}
}
