package cache

import (
	"database/sql"
	"time"

	"github.com/sensen312/GobTrades-sub000/internal/store"
)

// ChatRow is a cached chat preview.
type ChatRow struct {
	ChatID           string
	PartnerID        string
	PartnerName      string
	PartnerAvatarRef string
	LastMessageText  string
	LastMessageAt    int64
	UnreadCount      int
}

// messageKey returns the stable dedup key for a message row: the durable id
// once the server has assigned one, otherwise the correlation id. A
// confirmed message upserted after its optimistic write would get a new key,
// so the persister replaces the optimistic row by correlation id first.
func messageKey(m *store.Message) string {
	if m.DurableID != "" {
		return m.DurableID
	}
	return m.CorrelationID
}

// UpsertChat inserts or updates a chat preview row (preview-fetch path:
// server values win outright).
func (db *DB) UpsertChat(c *ChatRow) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, partner_id, partner_name, partner_avatar_ref, last_message_text, last_message_at, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			partner_id = excluded.partner_id,
			partner_name = excluded.partner_name,
			partner_avatar_ref = excluded.partner_avatar_ref,
			last_message_text = excluded.last_message_text,
			last_message_at = excluded.last_message_at,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		c.ChatID, c.PartnerID, c.PartnerName, c.PartnerAvatarRef,
		c.LastMessageText, c.LastMessageAt, c.UnreadCount, now)
	return err
}

// TouchChat bumps a chat's last-message preview from message flow, only
// moving it forward in time.
func (db *DB) TouchChat(chatID, previewText string, at int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, last_message_text, last_message_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			last_message_text = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_text ELSE chats.last_message_text END,
			updated_at = excluded.updated_at`,
		chatID, previewText, at, now)
	return err
}

// ListChats returns cached chats sorted by last message timestamp
// descending.
func (db *DB) ListChats(limit, offset int) ([]ChatRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT chat_id, partner_id, partner_name, partner_avatar_ref, last_message_text, last_message_at, unread_count
		FROM chats
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []ChatRow
	for rows.Next() {
		var c ChatRow
		if err := rows.Scan(&c.ChatID, &c.PartnerID, &c.PartnerName, &c.PartnerAvatarRef,
			&c.LastMessageText, &c.LastMessageAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single cached chat, or nil if absent.
func (db *DB) GetChat(chatID string) (*ChatRow, error) {
	var c ChatRow
	err := db.QueryRow(`
		SELECT chat_id, partner_id, partner_name, partner_avatar_ref, last_message_text, last_message_at, unread_count
		FROM chats WHERE chat_id = ?`, chatID).
		Scan(&c.ChatID, &c.PartnerID, &c.PartnerName, &c.PartnerAvatarRef,
			&c.LastMessageText, &c.LastMessageAt, &c.UnreadCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertMessage inserts or updates a message row, idempotent on
// (chat_id, msg_key). A confirmation for a cached optimistic row rewrites
// that row in place, keyed by correlation id.
func (db *DB) UpsertMessage(m *store.Message) error {
	now := time.Now().UnixMilli()

	if m.DurableID != "" && m.CorrelationID != "" {
		// Promote a cached optimistic row to its confirmed identity.
		res, err := db.Exec(`
			UPDATE messages
			SET msg_key = ?, durable_id = ?, status = ?, created_at = ?
			WHERE chat_id = ? AND correlation_id = ? AND durable_id = ''`,
			messageKey(m), m.DurableID, string(m.Status), m.CreatedAt,
			m.ChatID, m.CorrelationID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}

	_, err := db.Exec(`
		INSERT INTO messages (chat_id, msg_key, durable_id, correlation_id, sender_id, body, image_ref, offered_listing_id, status, created_at, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_key) DO UPDATE SET
			body = excluded.body,
			status = excluded.status,
			created_at = excluded.created_at`,
		m.ChatID, messageKey(m), m.DurableID, m.CorrelationID, m.SenderID,
		m.Text, m.ImageRef, m.OfferedListingID, string(m.Status), m.CreatedAt, now)
	return err
}

// ListMessages returns cached messages for a chat using keyset pagination by
// timestamp, newest first.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT durable_id, correlation_id, chat_id, sender_id, body, image_ref, offered_listing_id, status, created_at
		FROM messages
		WHERE chat_id = ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		var st string
		if err := rows.Scan(&m.DurableID, &m.CorrelationID, &m.ChatID, &m.SenderID,
			&m.Text, &m.ImageRef, &m.OfferedListingID, &st, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Status = store.Status(st)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SetCheckpoint stores a profile-level sync checkpoint value.
func (db *DB) SetCheckpoint(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO profile_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetCheckpoint retrieves a profile-level sync checkpoint value, or empty
// string if unset.
func (db *DB) GetCheckpoint(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM profile_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
