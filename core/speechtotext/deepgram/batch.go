package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/polyglotgames/dialogue-core/core/speechtotext"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// TranscribeBatch submits one complete utterance to the prerecorded listen
// endpoint and returns its transcript.
func (c *Client) TranscribeBatch(ctx context.Context, audio []byte, opts ...speechtotext.TranscriptionOption) (string, error) {
	options := applyOptions(opts)

	ctx, span := tracer.Start(ctx, "transcribe batch")
	defer span.End()
	span.SetAttributes(attribute.Int("request.audio_bytes", len(audio)))

	listenURL, _ := url.Parse("https://api.deepgram.com/v1/listen")
	queryParams := listenURL.Query()
	queryParams.Set("model", options.Model)
	queryParams.Set("language", options.Language)
	queryParams.Set("smart_format", "true")
	listenURL.RawQuery = queryParams.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, listenURL.String(), bytes.NewReader(audio))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return "", err
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "audio/*")

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return "", err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		return "", err
	}

	var responseBody struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&responseBody); err != nil {
		err = fmt.Errorf("error unmarshalling response: %w", err)
		span.RecordError(err)
		return "", err
	}

	if len(responseBody.Results.Channels) == 0 || len(responseBody.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}

	return strings.TrimSpace(responseBody.Results.Channels[0].Alternatives[0].Transcript), nil
}
