package events

const KindWorldStateChanged Kind = "world.state_changed"

type WorldStateChanged struct {
	Base

	ParticipantID string
	GameEvent     string
}

func NewWorldStateChanged(participantID, gameEvent string) WorldStateChanged {
	return WorldStateChanged{
		Base:          NewBase(KindWorldStateChanged),
		ParticipantID: participantID,
		GameEvent:     gameEvent,
	}
}
