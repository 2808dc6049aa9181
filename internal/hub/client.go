package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Dialer opens authenticated connections to the hub. The connection manager
// depends on this interface so tests can swap in a fake hub.
type Dialer interface {
	Dial(ctx context.Context, userID string) (Conn, error)
}

// Conn is a live hub connection.
type Conn interface {
	// ReadEvent blocks until the next decodable server event arrives.
	// Unknown frame types are skipped with a warning.
	ReadEvent() (*ServerEvent, error)
	// Send writes a send frame to the hub.
	Send(f SendFrame) error
	// Close attempts a graceful websocket close, then tears the socket down.
	Close() error
}

// WebsocketDialer dials the hub over a websocket with the identity header.
type WebsocketDialer struct {
	url    string
	logger *zap.Logger
}

// NewDialer creates a dialer for the given hub websocket URL.
func NewDialer(url string, logger *zap.Logger) *WebsocketDialer {
	return &WebsocketDialer{url: url, logger: logger}
}

// Dial opens a connection authenticated as userID.
func (d *WebsocketDialer) Dial(ctx context.Context, userID string) (Conn, error) {
	header := http.Header{}
	header.Set(IdentityHeader, userID)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial hub: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial hub: %w", err)
	}
	d.logger.Info("hub connection established", zap.String("url", d.url))
	return &wsConn{ws: ws, logger: d.logger}, nil
}

type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	logger  *zap.Logger
}

func (c *wsConn) ReadEvent() (*ServerEvent, error) {
	for {
		var f serverFrame
		if err := c.ws.ReadJSON(&f); err != nil {
			return nil, err
		}
		evt, ok := decodeFrame(&f)
		if !ok {
			c.logger.Warn("skipping unknown hub frame", zap.String("type", f.Type))
			continue
		}
		return evt, nil
	}
}

func (c *wsConn) Send(f SendFrame) error {
	f.Type = frameTypeSend
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(f)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	// Best effort: tell the hub we are leaving before dropping the socket.
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// IsUnrecoverableClose reports whether a read error is a deliberate server
// rejection rather than a transient drop. Policy violations and the
// backend's reserved 4000-4999 close codes mean reconnecting would only be
// rejected again.
func IsUnrecoverableClose(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	if closeErr.Code == websocket.ClosePolicyViolation {
		return true
	}
	return closeErr.Code >= 4000 && closeErr.Code <= 4999
}
