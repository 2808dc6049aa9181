package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sensen312/GobTrades-sub000/internal/hub"
	"github.com/sensen312/GobTrades-sub000/internal/store"
	"go.uber.org/zap"
)

// ChatPreview is one entry of the bulk chat-list fetch.
type ChatPreview struct {
	ChatID           string `json:"chatId"`
	PartnerID        string `json:"partnerId"`
	PartnerName      string `json:"partnerName"`
	PartnerAvatarRef string `json:"partnerAvatarRef,omitempty"`
	LastMessageText  string `json:"lastMessageText,omitempty"`
	LastMessageAt    int64  `json:"lastMessageAtUnixMs"`
	UnreadCount      int    `json:"unreadCount"`
}

// historyMessage is the backend's JSON message shape on the history
// endpoint (same shape the hub pushes).
type historyMessage struct {
	ID               string `json:"_id"`
	CorrelationID    string `json:"correlationId,omitempty"`
	ChatID           string `json:"chatId"`
	SenderID         string `json:"senderId"`
	Text             string `json:"text,omitempty"`
	ImageRef         string `json:"imageRef,omitempty"`
	OfferedListingID string `json:"offeredListingId,omitempty"`
	CreatedAtUnixMs  int64  `json:"createdAtUnixMs"`
}

// StatusError is returned for non-2xx backend responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// Client talks to the GobTrades backend REST API. Every request carries the
// opaque identity header; there is no token lifecycle.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu     sync.Mutex
	userID string
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// SetIdentity updates the identity attached to subsequent requests.
func (c *Client) SetIdentity(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

func (c *Client) identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// FetchPreviews returns the full chat-preview list for the current user.
func (c *Client) FetchPreviews(ctx context.Context) ([]ChatPreview, error) {
	var previews []ChatPreview
	if err := c.getJSON(ctx, "/api/chats", nil, &previews); err != nil {
		return nil, fmt.Errorf("fetch chat previews: %w", err)
	}
	return previews, nil
}

// FetchHistory returns one page of a conversation's history, ordered
// ascending by timestamp. beforeTs of zero means the newest page.
func (c *Client) FetchHistory(ctx context.Context, chatID string, beforeTs int64, limit int) ([]store.Message, error) {
	q := url.Values{}
	if beforeTs > 0 {
		q.Set("before", strconv.FormatInt(beforeTs, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var page []historyMessage
	path := "/api/chats/" + url.PathEscape(chatID) + "/messages"
	if err := c.getJSON(ctx, path, q, &page); err != nil {
		return nil, fmt.Errorf("fetch history for chat %s: %w", chatID, err)
	}

	msgs := make([]store.Message, 0, len(page))
	for _, hm := range page {
		msgs = append(msgs, store.Message{
			DurableID:        hm.ID,
			CorrelationID:    hm.CorrelationID,
			ChatID:           hm.ChatID,
			SenderID:         hm.SenderID,
			Text:             hm.Text,
			ImageRef:         hm.ImageRef,
			OfferedListingID: hm.OfferedListingID,
			CreatedAt:        hm.CreatedAtUnixMs,
			Status:           store.StatusSent,
		})
	}
	return msgs, nil
}

// MarkRead notifies the backend that the user has seen a conversation.
// Callers treat this as fire-and-forget; the unread tracker never rolls
// back on failure.
func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	path := "/api/chats/" + url.PathEscape(chatID) + "/read"
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, "")
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return checkStatus(resp)
}

// UploadImage uploads a chat image and returns the opaque image reference
// to attach to a subsequent send.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/uploads/chat-images", &body, mw.FormDataContentType())
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	var out struct {
		ImageRef string `json:"imageRef"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return out.ImageRef, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	p := path
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, p, nil, "")
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(hub.IdentityHeader, c.identity())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
}
