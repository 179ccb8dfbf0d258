// Package elevenlabs implements incremental speech synthesis against the
// ElevenLabs HTTP streaming endpoint. One request is made per sentence; audio
// arrives as a chunked body that is surfaced chunk by chunk.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/polyglotgames/dialogue-core/core/texttospeech"
)

const (
	defaultModel  = "eleven_flash_v2_5"
	defaultFormat = "pcm_24000"

	readChunkSize = 4096
)

type Client struct {
	apiKey       string
	defaultVoice string
}

func NewClient(apiKey, defaultVoice string) *Client {
	return &Client{apiKey: apiKey, defaultVoice: defaultVoice}
}

// SynthesizeStream synthesizes one sentence and yields raw audio chunks in
// arrival order. The sequence is finite and non-restartable; abandoning it or
// cancelling ctx aborts the request.
func (c *Client) SynthesizeStream(ctx context.Context, sentence string, opts ...texttospeech.SynthesisOption) iter.Seq2[[]byte, error] {
	options := texttospeech.SynthesisOptions{
		Voice:        c.defaultVoice,
		Model:        defaultModel,
		OutputFormat: defaultFormat,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return func(yield func([]byte, error) bool) {
		ctx, span := tracer.Start(ctx, "synthesize stream")
		defer span.End()
		span.SetAttributes(
			attribute.String("request.voice", options.Voice),
			attribute.Int("request.sentence_length", len(sentence)),
		)

		streamURL := url.URL{
			Scheme: "https",
			Host:   "api.elevenlabs.io",
			Path:   "/v1/text-to-speech/" + options.Voice + "/stream",
		}
		queryParams := streamURL.Query()
		queryParams.Set("output_format", options.OutputFormat)
		queryParams.Set("optimize_streaming_latency", "2")
		streamURL.RawQuery = queryParams.Encode()

		body := map[string]any{
			"model_id": options.Model,
			"text":     sentence,
			"voice_settings": map[string]any{
				"stability":        0.4,
				"similarity_boost": 0.7,
			},
		}
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			err = fmt.Errorf("error marshalling JSON: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, streamURL.String(), bytes.NewReader(bodyBytes))
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}
		req.Header.Set("xi-api-key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
		resp, err := client.Do(req)
		if err != nil {
			err = fmt.Errorf("error sending request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if errorBody, err := io.ReadAll(resp.Body); err == nil {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}
			err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		buf := make([]byte, readChunkSize)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !yield(chunk, nil) {
					return
				}
			}
			if readErr == io.EOF {
				return
			}
			if readErr != nil {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return
				}
				readErr = fmt.Errorf("error reading audio stream: %w", readErr)
				span.RecordError(readErr)
				yield(nil, readErr)
				return
			}
		}
	}
}
