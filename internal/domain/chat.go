package domain

// ChatMessage is the provider-agnostic chat message shape used by the answer
// service and the completion client.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
