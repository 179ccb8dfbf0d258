// Package deepgram implements batch and streaming transcription against the
// Deepgram listen API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/polyglotgames/dialogue-core/core/speechtotext"
)

const (
	defaultModel      = "nova-3"
	defaultEncoding   = "linear16"
	defaultSampleRate = 16000
)

type Client struct {
	apiKey string
}

func NewClient(apiKey string) *Client {
	return &Client{apiKey: apiKey}
}

// TranscribeStream feeds audio chunks into a live listen websocket and yields
// interim and final transcript events. The final event is emitted once the
// audio sequence ends and the server closes the utterance. Cancelling ctx or
// abandoning the sequence tears the connection down.
func (c *Client) TranscribeStream(ctx context.Context, audio iter.Seq[[]byte], opts ...speechtotext.TranscriptionOption) iter.Seq2[speechtotext.Event, error] {
	options := applyOptions(opts)

	return func(yield func(speechtotext.Event, error) bool) {
		ctx, span := tracer.Start(ctx, "transcribe stream")
		defer span.End()

		conn, err := c.connectWebsocket(options)
		if err != nil {
			err = fmt.Errorf("failed to open listen websocket: %w", err)
			span.RecordError(err)
			yield(speechtotext.Event{}, err)
			return
		}
		defer conn.Close()

		var writeMu sync.Mutex
		writerDone := make(chan error, 1)
		go func() {
			writerDone <- pumpAudio(ctx, conn, &writeMu, audio)
		}()

		var segments []string
		for {
			select {
			case <-ctx.Done():
				yield(speechtotext.Event{}, ctx.Err())
				return
			default:
			}

			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				if strings.Contains(err.Error(), "close 1000") {
					break
				}
				err = fmt.Errorf("failed to read listen websocket message: %w", err)
				span.RecordError(err)
				yield(speechtotext.Event{}, err)
				return
			}
			if msgType == websocket.BinaryMessage {
				continue
			}

			event, finished, ok := processMessage(msg, &segments)
			if finished {
				break
			}
			if !ok {
				continue
			}
			if !yield(event, nil) {
				return
			}
		}

		if err := <-writerDone; err != nil {
			span.RecordError(err)
			yield(speechtotext.Event{}, err)
			return
		}

		final := strings.TrimSpace(strings.Join(segments, " "))
		yield(speechtotext.Event{Type: speechtotext.EventFinal, Text: final}, nil)
	}
}

// pumpAudio forwards every chunk to the websocket, then asks the server to
// flush the stream so remaining segments finalize.
func pumpAudio(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex, audio iter.Seq[[]byte]) error {
	for chunk := range audio {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		writeMu.Lock()
		err := conn.WriteMessage(websocket.BinaryMessage, chunk)
		writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to write audio to listen websocket: %w", err)
		}
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close listen stream: %w", err)
	}
	return nil
}

// processMessage translates one server message. It returns the event to
// surface (when ok), and finished once the stream is fully flushed.
func processMessage(msg []byte, segments *[]string) (event speechtotext.Event, finished, ok bool) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal listen message", "error", err)
		return speechtotext.Event{}, false, false
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal listen transcript", "error", err)
			return speechtotext.Event{}, false, false
		}
		if len(msgResp.Channel.Alternatives) == 0 {
			return speechtotext.Event{}, false, false
		}
		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		if transcript == "" {
			return speechtotext.Event{}, false, false
		}
		if msgResp.IsFinal {
			*segments = append(*segments, transcript)
			return speechtotext.Event{}, false, false
		}
		interim := strings.TrimSpace(strings.Join(append(append([]string{}, *segments...), transcript), " "))
		return speechtotext.Event{Type: speechtotext.EventPartial, Text: interim}, false, true

	case api.TypeUtteranceEndResponse, api.TypeCloseStreamResponse:
		return speechtotext.Event{}, true, false
	}

	return speechtotext.Event{}, false, false
}

func (c *Client) connectWebsocket(options speechtotext.TranscriptionOptions) (*websocket.Conn, error) {
	listenURL, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenURL.Query()
	queryParams.Set("encoding", options.Encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", options.Model)
	queryParams.Set("language", options.Language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("endpointing", "300")
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func applyOptions(opts []speechtotext.TranscriptionOption) speechtotext.TranscriptionOptions {
	options := speechtotext.TranscriptionOptions{
		Language:   "fr",
		Model:      defaultModel,
		Encoding:   defaultEncoding,
		SampleRate: defaultSampleRate,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
