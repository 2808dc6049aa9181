package store

// Status is the delivery status of a message.
type Status string

const (
	// StatusSending is the initial optimistic state, set before the hub
	// round-trip completes.
	StatusSending Status = "sending"
	// StatusSent means the hub confirmed the message and assigned a
	// durable id.
	StatusSent Status = "sent"
	// StatusFailed means the send was rejected or errored. Failed messages
	// are never retried automatically.
	StatusFailed Status = "failed"
)

// FetchStatus is the per-conversation history fetch state.
type FetchStatus string

const (
	FetchIdle    FetchStatus = "idle"
	FetchLoading FetchStatus = "loading"
	FetchSuccess FetchStatus = "success"
	FetchError   FetchStatus = "error"
)

// Message is a single chat message. DurableID is empty until the hub
// confirms the message; CorrelationID is set only for messages sent from
// this client and is how confirm/fail events find their optimistic entry.
type Message struct {
	DurableID        string
	CorrelationID    string
	ChatID           string
	SenderID         string
	Text             string
	ImageRef         string
	OfferedListingID string
	CreatedAt        int64 // unix milliseconds
	Status           Status
}

// HydratedBatch is the bus payload published after a history hydrate.
type HydratedBatch struct {
	ChatID   string
	Messages []Message
}

// HasPayload reports whether the message carries at least one of text,
// image, or listing offer. Messages without any payload are rejected
// before they reach the wire.
func (m *Message) HasPayload() bool {
	return m.Text != "" || m.ImageRef != "" || m.OfferedListingID != ""
}
