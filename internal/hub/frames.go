package hub

import "github.com/sensen312/GobTrades-sub000/internal/store"

// IdentityHeader carries the opaque user id on the websocket handshake and
// on every REST request. The backend authenticates by this id alone; there
// is no token refresh.
const IdentityHeader = "X-Goblin-User"

// Server event types pushed by the hub.
const (
	EventMessage       = "message"
	EventSendConfirmed = "send_confirmed"
	EventSendFailed    = "send_failed"
)

const frameTypeSend = "send"

// SendFrame is the client-to-server send envelope. At least one of Text,
// ImageRef, or OfferedListingID must be set; the connection manager enforces
// that before the frame is built.
type SendFrame struct {
	Type             string `json:"type"`
	CorrelationID    string `json:"correlationId"`
	ChatID           string `json:"chatId"`
	Text             string `json:"text,omitempty"`
	ImageRef         string `json:"imageRef,omitempty"`
	OfferedListingID string `json:"offeredListingId,omitempty"`
}

// ServerEvent is a decoded server-to-client push.
//
// EventMessage carries Message; EventSendConfirmed carries CorrelationID and
// Message; EventSendFailed carries CorrelationID, ChatID, and Reason.
type ServerEvent struct {
	Type          string
	CorrelationID string
	ChatID        string
	Reason        string
	Message       *store.Message
}

// serverFrame is the raw wire shape of a server push.
type serverFrame struct {
	Type          string       `json:"type"`
	CorrelationID string       `json:"correlationId,omitempty"`
	ChatID        string       `json:"chatId,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Message       *wireMessage `json:"message,omitempty"`
}

// wireMessage is the backend's JSON message shape.
type wireMessage struct {
	ID               string `json:"_id"`
	CorrelationID    string `json:"correlationId,omitempty"`
	ChatID           string `json:"chatId"`
	SenderID         string `json:"senderId"`
	Text             string `json:"text,omitempty"`
	ImageRef         string `json:"imageRef,omitempty"`
	OfferedListingID string `json:"offeredListingId,omitempty"`
	CreatedAtUnixMs  int64  `json:"createdAtUnixMs"`
}

func (w *wireMessage) toStore() *store.Message {
	return &store.Message{
		DurableID:        w.ID,
		CorrelationID:    w.CorrelationID,
		ChatID:           w.ChatID,
		SenderID:         w.SenderID,
		Text:             w.Text,
		ImageRef:         w.ImageRef,
		OfferedListingID: w.OfferedListingID,
		CreatedAt:        w.CreatedAtUnixMs,
		Status:           store.StatusSent,
	}
}

// decodeFrame translates a raw frame into a ServerEvent. Returns false for
// unknown or malformed frames, which callers skip.
func decodeFrame(f *serverFrame) (*ServerEvent, bool) {
	switch f.Type {
	case EventMessage, EventSendConfirmed:
		if f.Message == nil {
			return nil, false
		}
		evt := &ServerEvent{
			Type:          f.Type,
			CorrelationID: f.CorrelationID,
			ChatID:        f.Message.ChatID,
			Message:       f.Message.toStore(),
		}
		// A confirmation's correlation id may ride on the envelope or on
		// the message itself; make both visible to the dispatcher.
		if evt.CorrelationID == "" {
			evt.CorrelationID = f.Message.CorrelationID
		}
		if evt.Message.CorrelationID == "" {
			evt.Message.CorrelationID = evt.CorrelationID
		}
		return evt, true
	case EventSendFailed:
		return &ServerEvent{
			Type:          f.Type,
			CorrelationID: f.CorrelationID,
			ChatID:        f.ChatID,
			Reason:        f.Reason,
		}, true
	default:
		return nil, false
	}
}
