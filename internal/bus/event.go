package bus

import "time"

// Event kinds published on the bus. Subscribers filter by namespace prefix,
// so "message." matches every message event and "" matches everything.
const (
	KindConnStatusChanged = "conn.status_changed"

	KindMessageUpserted = "message.upserted"
	KindMessageSendAck  = "message.send_ack"
	KindMessageSendFail = "message.send_failed"
	KindMessageHydrated = "message.history_hydrated"

	KindUnreadChanged = "unread.changed"

	KindAuthIdentityChanged = "auth.identity_changed"

	KindMarketOpened = "market.opened"
	KindMarketClosed = "market.closed"

	// KindNotifyUser carries a transient, user-visible notification string.
	// The embedding shell renders it as a toast; gobchatd just logs it.
	KindNotifyUser = "notify.user"
)

// Event is a domain event delivered to subscribers.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
