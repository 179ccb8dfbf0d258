package orchestration

import (
	"context"
	"fmt"

	"github.com/polyglotgames/dialogue-core/core/events"
)

// GameEventType names a state change pushed in from the game world.
type GameEventType string

const (
	PlayerMoved            GameEventType = "player_moved"
	PlayerPickedObject     GameEventType = "player_picked_object"
	PlayerDroppedObject    GameEventType = "player_dropped_object"
	PlayerEnteredProximity GameEventType = "player_entered_proximity"
	PlayerLeftProximity    GameEventType = "player_left_proximity"
	SceneChanged           GameEventType = "scene_changed"
	DialogueStarted        GameEventType = "dialogue_started"
	DialogueEnded          GameEventType = "dialogue_ended"
	RelationshipChanged    GameEventType = "relationship_changed"
)

// GameEvent is one world update from the game client. Only the fields
// relevant to its type are read.
type GameEvent struct {
	Type          GameEventType `json:"type"`
	ParticipantID string        `json:"participant_id"`
	CharacterID   string        `json:"character_id,omitempty"`
	Scene         string        `json:"scene,omitempty"`
	Object        string        `json:"object,omitempty"`
	Position      *[3]float64   `json:"position,omitempty"`
	Delta         float64       `json:"delta,omitempty"`
}

// HandleGameEvent folds one game event into the participant's situational
// state so the next turn's snapshot reflects it. Events affecting an
// in-flight turn do not alter that turn; it keeps its frozen snapshot.
func (o *Orchestrator) HandleGameEvent(ctx context.Context, event GameEvent) error {
	if o == nil {
		return fmt.Errorf("orchestrator is not initialized")
	}
	if event.ParticipantID == "" {
		return fmt.Errorf("game event without participant id")
	}

	ctx, span := tracer.Start(ctx, "orchestration.game_event")
	defer span.End()

	patch, err := o.patchForEvent(ctx, event)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if patch != nil {
		if err := o.contextStore.UpdateState(ctx, event.ParticipantID, *patch); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to apply %s: %w", event.Type, err)
		}
	}

	if o.bus != nil {
		o.bus.Publish(TopicWorld, events.NewWorldStateChanged(event.ParticipantID, string(event.Type)))
	}
	return nil
}

func (o *Orchestrator) patchForEvent(ctx context.Context, event GameEvent) (*StatePatch, error) {
	switch event.Type {
	case PlayerMoved:
		if event.Position == nil {
			return nil, fmt.Errorf("%s without position", event.Type)
		}
		return &StatePatch{Position: event.Position}, nil

	case PlayerPickedObject:
		object := event.Object
		return &StatePatch{HeldObject: &object}, nil

	case PlayerDroppedObject:
		empty := ""
		return &StatePatch{HeldObject: &empty}, nil

	case PlayerEnteredProximity:
		if event.CharacterID == "" {
			return nil, fmt.Errorf("%s without character id", event.Type)
		}
		return &StatePatch{AddNearby: []string{event.CharacterID}}, nil

	case PlayerLeftProximity:
		if event.CharacterID == "" {
			return nil, fmt.Errorf("%s without character id", event.Type)
		}
		return &StatePatch{RemoveNearby: []string{event.CharacterID}}, nil

	case SceneChanged:
		scene := event.Scene
		// A scene change invalidates proximity; the new scene repopulates
		// it through its own proximity events.
		return &StatePatch{Scene: &scene, ClearNearby: true}, nil

	case DialogueStarted:
		if event.CharacterID == "" {
			return nil, fmt.Errorf("%s without character id", event.Type)
		}
		character := event.CharacterID
		return &StatePatch{ActiveCharacter: &character}, nil

	case DialogueEnded:
		empty := ""
		return &StatePatch{ActiveCharacter: &empty}, nil

	case RelationshipChanged:
		if event.CharacterID == "" {
			return nil, fmt.Errorf("%s without character id", event.Type)
		}
		if _, err := o.profiles.AdjustRelationship(ctx, event.CharacterID, event.ParticipantID, event.Delta); err != nil {
			return nil, fmt.Errorf("failed to adjust relationship: %w", err)
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown game event type %q", event.Type)
	}
}
