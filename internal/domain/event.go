package domain

// InboundEvent is a single incoming chat message as seen by the gateway.
type InboundEvent struct {
	EventID         string
	ConversationID  string
	UserID          string
	Text            string
	ThreadID        string
	IsDirectMessage bool
	FromBot         bool
}
