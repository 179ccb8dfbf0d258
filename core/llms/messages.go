// Package llms holds the provider-neutral types exchanged with
// dialogue-generation clients.
package llms

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Prompt is one fully assembled generation request. History carries the
// recent conversation window in chronological order; User is the utterance
// the model responds to.
type Prompt struct {
	System      string
	History     []Message
	User        string
	Temperature float64
}

// Messages flattens the prompt into an ordered message list, system first.
func (p Prompt) Messages() []Message {
	messages := make([]Message, 0, len(p.History)+2)
	if p.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: p.System})
	}
	messages = append(messages, p.History...)
	if p.User != "" {
		messages = append(messages, Message{Role: RoleUser, Content: p.User})
	}
	return messages
}
