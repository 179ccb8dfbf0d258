// Package groq implements dialogue generation against the Groq chat
// completions API, in both incremental (SSE streaming) and structured
// (JSON-schema constrained) modes.
package groq

const (
	url = "https://api.groq.com/openai/v1/chat/completions"

	chunkPrefix = "data:"
	endMessage  = "[DONE]"
)

type Client struct {
	apiKey string
	model  string
}

func NewClient(apiKey, model string) *Client {
	return &Client{apiKey: apiKey, model: model}
}
