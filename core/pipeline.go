package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polyglotgames/dialogue-core/core/llms"
	"github.com/polyglotgames/dialogue-core/core/texttospeech"
)

const synthesisRetryBackoff = 250 * time.Millisecond

// responsePipeline runs the primary path of one turn: stream the character's
// response out of the generator, assemble sentences, and synthesize them in
// order. The two workers are joined through the sentence buffer so synthesis
// of sentence N overlaps generation of sentence N+1.
type responsePipeline struct {
	generator   DialogueGenerator
	synthesizer SpeechSynthesizer
	buffer      *sentenceBuffer
	options     *TurnOptions
	voice       string
}

// run blocks until both workers are done and returns the full response text.
// A failure in either worker cancels the other through ctx.
func (p *responsePipeline) run(ctx context.Context, prompt llms.Prompt) (string, error) {
	ctx, span := tracer.Start(ctx, "orchestration.response_pipeline")
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []error
	)

	worker := func(name string, f func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if recovered := recover(); recovered != nil {
					mu.Lock()
					failures = append(failures, fmt.Errorf("%s worker panicked: %v", name, recovered))
					mu.Unlock()
					cancel()
				}
			}()

			if err := f(ctx); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				cancel()
			}
		}()
	}

	worker("generation", p.generate(prompt))
	worker("synthesis", p.synthesize())

	wg.Wait()

	if err := errors.Join(failures...); err != nil {
		span.RecordError(err)
		return p.buffer.String(), err
	}
	return p.buffer.String(), nil
}

func (p *responsePipeline) generate(prompt llms.Prompt) func(ctx context.Context) error {
	return func(ctx context.Context) (err error) {
		// The synthesis worker blocks on the buffer; it must be released
		// no matter how generation ends.
		defer p.buffer.Close()

		for fragment, streamErr := range p.generator.GenerateStream(ctx, prompt) {
			if streamErr != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return newTurnError(FailureGeneration, streamErr)
			}

			p.buffer.Push(fragment)
			if p.options.onResponseFragment != nil {
				p.options.onResponseFragment(fragment)
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		return nil
	}
}

func (p *responsePipeline) synthesize() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		defer func() {
			if p.options.onAudioEnded != nil {
				p.options.onAudioEnded()
			}
		}()

		for sentence := range p.buffer.Sentences {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if p.options.onSentence != nil {
				p.options.onSentence(sentence)
			}

			if err := p.synthesizeSentence(ctx, sentence); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return newTurnError(FailureSynthesis, err)
			}
		}
		return ctx.Err()
	}
}

// synthesizeSentence streams one sentence's audio to the turn callback,
// retrying once on failure. A retry only happens when no chunk of the
// sentence went out yet; delivered audio is never replayed.
func (p *responsePipeline) synthesizeSentence(ctx context.Context, sentence string) error {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("synthesizing sentence", trace.WithAttributes(
		attribute.Int("sentence.length", len(sentence)),
	))

	var opts []texttospeech.SynthesisOption
	if p.voice != "" {
		opts = append(opts, texttospeech.WithVoice(p.voice))
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(synthesisRetryBackoff):
			}
			logger.WarnContext(ctx, "retrying sentence synthesis", "error", lastErr)
		}

		lastErr = nil
		delivered := false
		for chunk, err := range p.synthesizer.SynthesizeStream(ctx, sentence, opts...) {
			if err != nil {
				lastErr = err
				break
			}
			delivered = true
			if p.options.onAudio != nil {
				p.options.onAudio(chunk)
			}
		}
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			break
		}
	}

	return fmt.Errorf("sentence synthesis failed: %w", lastErr)
}
