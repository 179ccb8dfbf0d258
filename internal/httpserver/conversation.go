package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	orchestration "github.com/polyglotgames/dialogue-core/core"
	"github.com/polyglotgames/dialogue-core/core/events"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The game client runs inside the engine's embedded browser or a
	// native WebSocket stack; origin checks happen at the gateway.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Client-to-server control messages. Binary frames carry raw audio and are
// only valid between start_audio and end_audio.
type clientMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript,omitempty"`
}

// Server-to-client messages. Binary frames carry synthesized audio.
type serverMessage struct {
	Type string `json:"type"`

	Text     string `json:"text,omitempty"`
	TurnID   string `json:"turn_id,omitempty"`
	Response string `json:"response,omitempty"`
	Message  string `json:"message,omitempty"`

	Category    string `json:"category,omitempty"`
	Original    string `json:"original,omitempty"`
	Correction  string `json:"correction,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Severity    int    `json:"severity,omitempty"`
}

// wsWriter serializes writes; gorilla connections allow one writer at a time
// and turn callbacks arrive from pipeline goroutines.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) sendJSON(message serverMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteMessage(websocket.TextMessage, payload)
}

func (w *wsWriter) sendBinary(chunk []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// converse is the conversation endpoint. One connection maps to one session;
// closing the connection ends the session and cancels any in-flight turn.
func (s *Server) converse(c echo.Context) error {
	participantID := c.Param("participant_id")
	characterID := c.Param("character_id")

	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	writer := &wsWriter{conn: conn}
	session := s.orchestrator.Session(participantID, characterID)
	defer s.orchestrator.EndSession(participantID, characterID)

	// Corrections are pushed as they settle, independent of turn progress.
	if bus := s.orchestrator.Bus(); bus != nil {
		sub := bus.Subscribe(orchestration.TopicCorrections, func(event events.Event) {
			detected, ok := event.(events.CorrectionDetected)
			if !ok || detected.ParticipantID != participantID {
				return
			}
			writer.sendJSON(serverMessage{
				Type:        "correction",
				TurnID:      detected.TurnID,
				Category:    detected.Category,
				Original:    detected.Original,
				Correction:  detected.Correction,
				Explanation: detected.Explanation,
				Severity:    detected.Severity,
			})
		})
		defer bus.Unsubscribe(sub)
	}

	ctx := c.Request().Context()
	var (
		audioFrames chan []byte
		audioDone   chan struct{}
	)

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if audioFrames != nil {
				close(audioFrames)
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WarnContext(ctx, "conversation connection dropped",
					"participant_id", participantID, "error", err)
			}
			return nil
		}

		if messageType == websocket.BinaryMessage {
			if audioFrames == nil {
				writer.sendJSON(serverMessage{Type: "error", Message: "audio frame outside start_audio/end_audio"})
				continue
			}
			frame := make([]byte, len(payload))
			copy(frame, payload)
			// The turn may settle without draining the stream (transcription
			// failure, busy rejection, cancel). Frames must never block the
			// read loop past that point.
			select {
			case audioFrames <- frame:
			case <-audioDone:
				audioFrames = nil
				audioDone = nil
			}
			continue
		}

		var message clientMessage
		if err := json.Unmarshal(payload, &message); err != nil {
			writer.sendJSON(serverMessage{Type: "error", Message: "malformed control message"})
			continue
		}

		switch message.Type {
		case "turn":
			if message.Transcript == "" {
				writer.sendJSON(serverMessage{Type: "error", Message: "turn requires a transcript"})
				continue
			}
			go s.runConversationTurn(ctx, session, writer,
				orchestration.TurnInput{Transcript: message.Transcript})

		case "start_audio":
			if audioFrames != nil {
				writer.sendJSON(serverMessage{Type: "error", Message: "audio turn already open"})
				continue
			}
			frames := make(chan []byte, 32)
			done := make(chan struct{})
			audioFrames = frames
			audioDone = done
			go func() {
				defer close(done)
				s.runConversationTurn(ctx, session, writer,
					orchestration.TurnInput{AudioStream: func(yield func([]byte) bool) {
						for frame := range frames {
							if !yield(frame) {
								break
							}
						}
					}})
			}()

		case "end_audio":
			if audioFrames == nil {
				writer.sendJSON(serverMessage{Type: "error", Message: "no audio turn open"})
				continue
			}
			close(audioFrames)
			audioFrames = nil
			audioDone = nil

		case "cancel":
			session.CancelTurn()

		default:
			writer.sendJSON(serverMessage{Type: "error", Message: "unknown message type"})
		}
	}
}

func (s *Server) runConversationTurn(ctx context.Context, session *orchestration.Session, writer *wsWriter, input orchestration.TurnInput) {
	turn, err := s.orchestrator.RunTurn(ctx, session, input,
		orchestration.WithInterimTranscriptCallback(func(text string) {
			writer.sendJSON(serverMessage{Type: "interim_transcript", Text: text})
		}),
		orchestration.WithTranscriptCallback(func(text string) {
			writer.sendJSON(serverMessage{Type: "transcript", Text: text})
		}),
		orchestration.WithSentenceCallback(func(sentence string) {
			writer.sendJSON(serverMessage{Type: "sentence", Text: sentence})
		}),
		orchestration.WithAudioCallback(writer.sendBinary),
		orchestration.WithAudioEndedCallback(func() {
			writer.sendJSON(serverMessage{Type: "audio_end"})
		}),
	)
	if errors.Is(err, orchestration.ErrSessionBusy) {
		writer.sendJSON(serverMessage{Type: "busy"})
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "conversation turn failed", "error", err)
		writer.sendJSON(serverMessage{Type: "error", Message: err.Error()})
		return
	}

	switch turn.Status {
	case orchestration.TurnCancelled:
		writer.sendJSON(serverMessage{Type: "turn_cancelled", TurnID: turn.ID})
	default:
		writer.sendJSON(serverMessage{
			Type:     "turn_complete",
			TurnID:   turn.ID,
			Text:     turn.Transcript,
			Response: turn.Response,
		})
	}
}
