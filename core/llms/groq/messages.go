package groq

import "github.com/polyglotgames/dialogue-core/core/llms"

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

func toMessages(prompt llms.Prompt) []message {
	var messages []message
	for _, m := range prompt.Messages() {
		messages = append(messages, message{
			Role:    messageRole(m.Role),
			Content: m.Content,
		})
	}
	return messages
}

type requestBody struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Content      string  `json:"content,omitempty"`
			FinishReason *string `json:"finish_reason,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		TotalTokens      int     `json:"total_tokens"`
		QueueTime        float64 `json:"queue_time"`
		TotalTime        float64 `json:"total_time"`
	} `json:"usage"`
}
