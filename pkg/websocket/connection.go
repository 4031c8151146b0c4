package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
)

// Connection is one bridged session: the client-facing socket and its
// upstream peer.
type Connection struct {
	id          string
	url         string
	path        string
	upstream    string
	connectedAt time.Time

	lastActivity atomic.Int64 // unix nanos
	messagesSent atomic.Int64
	messagesRecv atomic.Int64

	mu     sync.Mutex
	client *ws.Conn
	peer   *ws.Conn
	// closing is set by the first Close. A Close that lands before attach
	// is replayed by attach through closeReason.
	closing     bool
	closeReason string
}

func newConnection(id, url, path string) *Connection {
	c := &Connection{
		id:          id,
		url:         url,
		path:        path,
		connectedAt: time.Now(),
	}
	c.lastActivity.Store(c.connectedAt.UnixNano())
	return c
}

// ID returns the unique connection ID.
func (c *Connection) ID() string {
	return c.id
}

// URL returns the request URI the client connected to.
func (c *Connection) URL() string {
	return c.url
}

// ConnectedAt returns when the connection was established.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// LastActivity returns when a frame was last relayed in either direction.
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// MessagesSent returns the number of frames received from the upstream
// for delivery to the client.
func (c *Connection) MessagesSent() int64 {
	return c.messagesSent.Load()
}

// MessagesReceived returns the number of frames received from the client,
// blocked ones included.
func (c *Connection) MessagesReceived() int64 {
	return c.messagesRecv.Load()
}

func (c *Connection) touch(at time.Time) {
	c.lastActivity.Store(at.UnixNano())
}

// attach hands the sockets to the connection. It reports false, with the
// reason, when Close was called before the sockets existed; the caller
// then closes them itself instead of starting the relay.
func (c *Connection) attach(client, peer *ws.Conn, upstream string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upstream = upstream
	if c.closing {
		return c.closeReason, false
	}
	c.client = client
	c.peer = peer
	return "", true
}

// Close closes both sockets with a normal closure. The relay notices and
// removes the connection from its table. A connection still being set up
// is closed as soon as its sockets are attached. Safe to call more than
// once.
func (c *Connection) Close(reason string) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.closeReason = reason
	client, peer := c.client, c.peer
	c.mu.Unlock()

	for _, conn := range []*ws.Conn{client, peer} {
		if conn != nil {
			go func() { _ = conn.Close(ws.StatusNormalClosure, reason) }()
		}
	}
}

// Info returns a snapshot of the connection.
func (c *Connection) Info() *ConnectionInfo {
	c.mu.Lock()
	upstream := c.upstream
	c.mu.Unlock()
	return &ConnectionInfo{
		ID:               c.id,
		URL:              c.url,
		Upstream:         upstream,
		ConnectedAt:      c.connectedAt,
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesRecv.Load(),
		LastActivity:     c.LastActivity(),
	}
}
