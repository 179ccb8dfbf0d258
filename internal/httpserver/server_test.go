package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	orchestration "github.com/polyglotgames/dialogue-core/core"
	"github.com/polyglotgames/dialogue-core/core/eventbus"
	"github.com/polyglotgames/dialogue-core/core/llms"
	"github.com/polyglotgames/dialogue-core/core/speechtotext"
	"github.com/polyglotgames/dialogue-core/core/texttospeech"
)

type stubGenerator struct {
	fragments  []string
	structured string
}

func (g *stubGenerator) GenerateStream(ctx context.Context, prompt llms.Prompt) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, fragment := range g.fragments {
			if !yield(fragment, nil) {
				return
			}
		}
	}
}

func (g *stubGenerator) GenerateStructured(ctx context.Context, prompt llms.Prompt, out any) error {
	payload := g.structured
	if payload == "" {
		payload = `{"corrections":[]}`
	}
	return json.Unmarshal([]byte(payload), out)
}

type stubSynthesizer struct{}

func (stubSynthesizer) SynthesizeStream(ctx context.Context, sentence string, opts ...texttospeech.SynthesisOption) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		yield([]byte(sentence), nil)
	}
}

type stubSpeechToText struct{}

func (stubSpeechToText) TranscribeBatch(ctx context.Context, audio []byte, opts ...speechtotext.TranscriptionOption) (string, error) {
	return "transcribed", nil
}

func (stubSpeechToText) TranscribeStream(ctx context.Context, audio iter.Seq[[]byte], opts ...speechtotext.TranscriptionOption) iter.Seq2[speechtotext.Event, error] {
	return func(yield func(speechtotext.Event, error) bool) {
		for range audio {
		}
		yield(speechtotext.Event{Type: speechtotext.EventFinal, Text: "transcribed"}, nil)
	}
}

// failingSpeechToText rejects every transcription without draining the audio
// sequence, the way a refused upstream connection would.
type failingSpeechToText struct{}

func (failingSpeechToText) TranscribeBatch(ctx context.Context, audio []byte, opts ...speechtotext.TranscriptionOption) (string, error) {
	return "", errListenRefused
}

func (failingSpeechToText) TranscribeStream(ctx context.Context, audio iter.Seq[[]byte], opts ...speechtotext.TranscriptionOption) iter.Seq2[speechtotext.Event, error] {
	return func(yield func(speechtotext.Event, error) bool) {
		yield(speechtotext.Event{}, errListenRefused)
	}
}

var errListenRefused = errors.New("listen socket refused")

type stubContextStore struct{}

func (stubContextStore) Snapshot(ctx context.Context, participantID, characterID string) (*orchestration.ContextSnapshot, error) {
	return &orchestration.ContextSnapshot{
		ParticipantID: participantID,
		CharacterID:   characterID,
		Language:      "fr",
		Proficiency:   "A2",
	}, nil
}

func (stubContextStore) AppendTurns(ctx context.Context, participantID, characterID string, records ...orchestration.TurnRecord) error {
	return nil
}

func (stubContextStore) UpdateState(ctx context.Context, participantID string, patch orchestration.StatePatch) error {
	return nil
}

type stubProfiles struct{}

func (stubProfiles) Profile(ctx context.Context, characterID string) (*orchestration.CharacterProfile, error) {
	return &orchestration.CharacterProfile{ID: characterID, Name: "Marie", Personality: "warm"}, nil
}

func (stubProfiles) AdjustRelationship(ctx context.Context, characterID, participantID string, delta float64) (float64, error) {
	return orchestration.ClampRelationship(delta), nil
}

type stubMistakes struct {
	mu      sync.Mutex
	entries []orchestration.MistakeEntry
}

func (m *stubMistakes) AppendEntries(ctx context.Context, participantID string, entries []orchestration.MistakeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *stubMistakes) TopCategories(ctx context.Context, participantID string, limit int) ([]orchestration.CategoryCount, error) {
	return []orchestration.CategoryCount{{Category: "tense", Count: 2}}, nil
}

func (m *stubMistakes) RecentEntries(ctx context.Context, participantID string, since time.Time) ([]orchestration.MistakeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]orchestration.MistakeEntry(nil), m.entries...), nil
}

func newTestServer(t *testing.T, generator *stubGenerator) *httptest.Server {
	return newTestServerWithSpeechToText(t, generator, stubSpeechToText{})
}

func newTestServerWithSpeechToText(t *testing.T, generator *stubGenerator, stt orchestration.SpeechToText) *httptest.Server {
	t.Helper()

	orchestrator, err := orchestration.New(
		orchestration.WithSpeechToText(stt),
		orchestration.WithDialogueGenerator(generator),
		orchestration.WithSpeechSynthesizer(stubSynthesizer{}),
		orchestration.WithContextStore(stubContextStore{}),
		orchestration.WithProfileRepository(stubProfiles{}),
		orchestration.WithMistakeRepository(&stubMistakes{}),
		orchestration.WithEventBus(eventbus.New()),
	)
	require.NoError(t, err)

	server := httptest.NewServer(New(orchestrator, &stubMistakes{}).Handler())
	t.Cleanup(server.Close)
	return server
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, &stubGenerator{})

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCorrectionsEndpoint(t *testing.T) {
	generator := &stubGenerator{
		structured: `{"corrections":[{"category":"tense","original":"je mange hier","correction":"j'ai mangé hier","explanation":"Past tense.","severity":3}]}`,
	}
	server := newTestServer(t, generator)

	resp, err := http.Post(server.URL+"/v1/corrections", "application/json",
		strings.NewReader(`{"language":"fr","proficiency":"A2","utterance":"je mange hier"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body correctionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Corrections, 1)
	require.Equal(t, "tense", body.Corrections[0].Category)
}

func TestCorrectionsEndpointRequiresUtterance(t *testing.T) {
	server := newTestServer(t, &stubGenerator{})

	resp, err := http.Post(server.URL+"/v1/corrections", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTopMistakesEndpoint(t *testing.T) {
	server := newTestServer(t, &stubGenerator{})

	resp, err := http.Get(server.URL + "/v1/participants/player-1/mistakes/top?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Categories []orchestration.CategoryCount `json:"categories"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Categories, 1)
}

func TestWorldEventEndpoint(t *testing.T) {
	server := newTestServer(t, &stubGenerator{})

	resp, err := http.Post(server.URL+"/v1/world/events", "application/json",
		strings.NewReader(`{"type":"scene_changed","participant_id":"player-1","scene":"marché"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestWorldEventEndpointRejectsUnknownType(t *testing.T) {
	server := newTestServer(t, &stubGenerator{})

	resp, err := http.Post(server.URL+"/v1/world/events", "application/json",
		strings.NewReader(`{"type":"teleported","participant_id":"player-1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDebugTurnEndpoint(t *testing.T) {
	generator := &stubGenerator{fragments: []string{"Bien sûr."}}
	server := newTestServer(t, generator)

	resp, err := http.Post(server.URL+"/v1/debug/turn", "application/json",
		strings.NewReader(`{"participant_id":"player-1","character_id":"marie","transcript":"Bonjour"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body debugTurnResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "Bonjour", body.Transcript)
	require.Equal(t, "Bien sûr.", body.Response)
	require.Equal(t, "completed", body.Status)
}

func dialConversation(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/converse/player-1/marie"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until a text message of the wanted type arrives,
// collecting binary frames along the way.
func readUntil(t *testing.T, conn *websocket.Conn, wanted string) (serverMessage, [][]byte) {
	t.Helper()

	var audio [][]byte
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for {
		messageType, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		if messageType == websocket.BinaryMessage {
			audio = append(audio, payload)
			continue
		}

		var message serverMessage
		require.NoError(t, json.Unmarshal(payload, &message))
		if message.Type == wanted {
			return message, audio
		}
		if message.Type == "error" {
			t.Fatalf("unexpected error message: %s", message.Message)
		}
	}
}

func TestConversationTextTurn(t *testing.T) {
	generator := &stubGenerator{fragments: []string{"Bien sûr ! ", "Voilà."}}
	server := newTestServer(t, generator)
	conn := dialConversation(t, server)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "turn", Transcript: "Je veux un pain"}))

	complete, audio := readUntil(t, conn, "turn_complete")
	require.Equal(t, "Je veux un pain", complete.Text)
	require.Equal(t, "Bien sûr ! Voilà.", complete.Response)
	require.Len(t, audio, 2)
}

func TestConversationAudioTurn(t *testing.T) {
	generator := &stubGenerator{fragments: []string{"D'accord."}}
	server := newTestServer(t, generator)
	conn := dialConversation(t, server)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "start_audio"}))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
	require.NoError(t, conn.WriteJSON(clientMessage{Type: "end_audio"}))

	transcript, _ := readUntil(t, conn, "transcript")
	require.Equal(t, "transcribed", transcript.Text)

	complete, _ := readUntil(t, conn, "turn_complete")
	require.Equal(t, "D'accord.", complete.Response)
}

func TestConversationRejectsStrayAudioFrames(t *testing.T) {
	server := newTestServer(t, &stubGenerator{})
	conn := dialConversation(t, server)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}))

	message, _ := readUntilError(t, conn)
	require.Contains(t, message.Message, "audio frame")
}

// A failed audio turn stops pulling frames before the client stops sending
// them. The connection must keep reading control messages regardless, so a
// follow-up turn still works.
func TestConversationSurvivesAbandonedAudioTurn(t *testing.T) {
	generator := &stubGenerator{fragments: []string{"Bonjour."}}
	server := newTestServerWithSpeechToText(t, generator, failingSpeechToText{})
	conn := dialConversation(t, server)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "start_audio"}))
	for i := 0; i < 40; i++ {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	}
	require.NoError(t, conn.WriteJSON(clientMessage{Type: "turn", Transcript: "Bonjour"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		messageType, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		if messageType != websocket.TextMessage {
			continue
		}
		var message serverMessage
		require.NoError(t, json.Unmarshal(payload, &message))
		if message.Type == "turn_complete" {
			require.Equal(t, "Bonjour.", message.Response)
			return
		}
	}
}

func readUntilError(t *testing.T, conn *websocket.Conn) (serverMessage, [][]byte) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		messageType, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		if messageType != websocket.TextMessage {
			continue
		}
		var message serverMessage
		require.NoError(t, json.Unmarshal(payload, &message))
		if message.Type == "error" {
			return message, nil
		}
	}
}
