package events

const (
	KindTurnCompleted Kind = "turn.completed"
	KindTurnFailed    Kind = "turn.failed"
	KindTurnCancelled Kind = "turn.cancelled"
)

type TurnCompleted struct {
	Base

	TurnID        string
	ParticipantID string
	CharacterID   string
	Transcript    string
	Response      string
}

func NewTurnCompleted(turnID, participantID, characterID, transcript, response string) TurnCompleted {
	return TurnCompleted{
		Base:          NewBase(KindTurnCompleted),
		TurnID:        turnID,
		ParticipantID: participantID,
		CharacterID:   characterID,
		Transcript:    transcript,
		Response:      response,
	}
}

type TurnFailed struct {
	Base

	TurnID string
	Reason string
}

func NewTurnFailed(turnID, reason string) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed), TurnID: turnID, Reason: reason}
}

type TurnCancelled struct {
	Base

	TurnID string
}

func NewTurnCancelled(turnID string) TurnCancelled {
	return TurnCancelled{Base: NewBase(KindTurnCancelled), TurnID: turnID}
}
