// Package redisstate keeps the fast-changing conversational state in Redis:
// situational fields per participant and the dialogue history per
// (participant, character) pair.
package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	orchestration "github.com/polyglotgames/dialogue-core/core"
)

const (
	historyCap = 50
	historyTTL = 24 * time.Hour
)

// RelationshipSource resolves the relationship score kept in durable storage
// so snapshots carry it without a second round trip in the turn path.
type RelationshipSource interface {
	Relationship(ctx context.Context, characterID, participantID string) (float64, error)
}

// Store implements the context store on a Redis instance.
type Store struct {
	client        *redis.Client
	relationships RelationshipSource

	defaultLanguage    string
	defaultProficiency string
}

type Option func(*Store)

// WithRelationshipSource makes snapshots include the pair's relationship
// score. Without one the score stays at its zero value.
func WithRelationshipSource(source RelationshipSource) Option {
	return func(s *Store) {
		s.relationships = source
	}
}

// WithDefaults sets the language and proficiency used for participants that
// have no stored state yet.
func WithDefaults(language, proficiency string) Option {
	return func(s *Store) {
		s.defaultLanguage = language
		s.defaultProficiency = proficiency
	}
}

func New(client *redis.Client, opts ...Option) *Store {
	store := &Store{
		client:             client,
		defaultLanguage:    "fr",
		defaultProficiency: "A2",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func stateKey(participantID string) string {
	return "participant:" + participantID + ":state"
}

func nearbyKey(participantID string) string {
	return "participant:" + participantID + ":nearby"
}

func historyKey(participantID, characterID string) string {
	return "dialogue:" + participantID + ":" + characterID
}

type storedTurn struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"ts"`
}

func (s *Store) Snapshot(ctx context.Context, participantID, characterID string) (*orchestration.ContextSnapshot, error) {
	state, err := s.client.HGetAll(ctx, stateKey(participantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read participant state: %w", err)
	}

	nearby, err := s.client.SMembers(ctx, nearbyKey(participantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read nearby characters: %w", err)
	}

	raw, err := s.client.LRange(ctx, historyKey(participantID, characterID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dialogue history: %w", err)
	}

	snapshot := &orchestration.ContextSnapshot{
		ParticipantID:    participantID,
		CharacterID:      characterID,
		Language:         stringField(state, "language", s.defaultLanguage),
		Proficiency:      stringField(state, "proficiency", s.defaultProficiency),
		Scene:            state["scene"],
		HeldObject:       state["held_object"],
		ActiveQuest:      state["active_quest"],
		NearbyCharacters: nearby,
	}

	for _, line := range raw {
		var turn storedTurn
		if err := json.Unmarshal([]byte(line), &turn); err != nil {
			// A corrupt line loses one history entry, not the turn.
			continue
		}
		snapshot.Turns = append(snapshot.Turns, orchestration.TurnRecord{
			Speaker:   orchestration.Speaker(turn.Speaker),
			Text:      turn.Text,
			Timestamp: turn.Timestamp,
		})
	}

	if s.relationships != nil {
		score, err := s.relationships.Relationship(ctx, characterID, participantID)
		if err != nil {
			return nil, fmt.Errorf("failed to read relationship: %w", err)
		}
		snapshot.Relationship = orchestration.ClampRelationship(score)
	}

	return snapshot, nil
}

func (s *Store) AppendTurns(ctx context.Context, participantID, characterID string, records ...orchestration.TurnRecord) error {
	if len(records) == 0 {
		return nil
	}

	key := historyKey(participantID, characterID)
	lines := make([]interface{}, 0, len(records))
	for _, record := range records {
		line, err := json.Marshal(storedTurn{
			Speaker:   string(record.Speaker),
			Text:      record.Text,
			Timestamp: record.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("failed to encode turn record: %w", err)
		}
		lines = append(lines, line)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, lines...)
	pipe.LTrim(ctx, key, -historyCap, -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append dialogue history: %w", err)
	}
	return nil
}

func (s *Store) UpdateState(ctx context.Context, participantID string, patch orchestration.StatePatch) error {
	pipe := s.client.TxPipeline()

	fields := map[string]interface{}{}
	setField := func(name string, value *string) {
		if value != nil {
			fields[name] = *value
		}
	}
	setField("scene", patch.Scene)
	setField("held_object", patch.HeldObject)
	setField("active_quest", patch.ActiveQuest)
	setField("active_character", patch.ActiveCharacter)
	setField("language", patch.Language)
	if patch.Position != nil {
		fields["pos_x"] = strconv.FormatFloat(patch.Position[0], 'f', -1, 64)
		fields["pos_y"] = strconv.FormatFloat(patch.Position[1], 'f', -1, 64)
		fields["pos_z"] = strconv.FormatFloat(patch.Position[2], 'f', -1, 64)
	}
	if len(fields) > 0 {
		pipe.HSet(ctx, stateKey(participantID), fields)
	}

	if patch.ClearNearby {
		pipe.Del(ctx, nearbyKey(participantID))
	}
	if len(patch.AddNearby) > 0 {
		pipe.SAdd(ctx, nearbyKey(participantID), toInterfaces(patch.AddNearby)...)
	}
	if len(patch.RemoveNearby) > 0 {
		pipe.SRem(ctx, nearbyKey(participantID), toInterfaces(patch.RemoveNearby)...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update participant state: %w", err)
	}
	return nil
}

func stringField(state map[string]string, name, fallback string) string {
	if value := state[name]; value != "" {
		return value
	}
	return fallback
}

func toInterfaces(values []string) []interface{} {
	result := make([]interface{}, len(values))
	for i, value := range values {
		result[i] = value
	}
	return result
}
