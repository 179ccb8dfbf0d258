package events

const KindCorrectionDetected Kind = "correction.detected"

// CorrectionDetected is published once per detected mistake after the
// correction side path persisted its entries. The primary response path never
// waits for it.
type CorrectionDetected struct {
	Base

	TurnID        string
	ParticipantID string
	Category      string
	Original      string
	Correction    string
	Explanation   string
	Severity      int
}

func NewCorrectionDetected(turnID, participantID, category, original, correction, explanation string, severity int) CorrectionDetected {
	return CorrectionDetected{
		Base:          NewBase(KindCorrectionDetected),
		TurnID:        turnID,
		ParticipantID: participantID,
		Category:      category,
		Original:      original,
		Correction:    correction,
		Explanation:   explanation,
		Severity:      severity,
	}
}
