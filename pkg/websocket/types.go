package websocket

import (
	"time"

	ws "github.com/coder/websocket"
)

// MessageType represents the type of WebSocket message.
type MessageType int

const (
	// MessageText indicates a UTF-8 encoded text message.
	MessageText MessageType = MessageType(ws.MessageText)
	// MessageBinary indicates a binary message.
	MessageBinary MessageType = MessageType(ws.MessageBinary)
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// CloseCode represents a WebSocket close status code per RFC 6455.
type CloseCode int

const (
	// CloseNormalClosure indicates a normal closure (1000).
	CloseNormalClosure CloseCode = 1000
	// CloseGoingAway indicates the endpoint is going away (1001).
	CloseGoingAway CloseCode = 1001
	// CloseReserved is reserved and never sent on the wire (1004).
	CloseReserved CloseCode = 1004
	// CloseNoStatusReceived indicates no status code was received (1005).
	CloseNoStatusReceived CloseCode = 1005
	// CloseAbnormalClosure indicates abnormal closure (1006).
	CloseAbnormalClosure CloseCode = 1006
	// ClosePolicyViolation indicates a policy violation (1008).
	ClosePolicyViolation CloseCode = 1008
	// CloseMessageTooBig indicates message is too large (1009).
	CloseMessageTooBig CloseCode = 1009
	// CloseInternalError indicates internal server error (1011).
	CloseInternalError CloseCode = 1011
	// CloseBadGateway indicates the upstream could not be reached (1014).
	CloseBadGateway CloseCode = 1014
	// CloseTLSHandshake indicates TLS handshake failure (1015).
	CloseTLSHandshake CloseCode = 1015
)

// Sendable reports whether c may appear in a close frame. 1004, 1005,
// 1006 and 1015 are local-only, 1016-2999 are unassigned and anything
// outside 1000-4999 is invalid.
func (c CloseCode) Sendable() bool {
	switch {
	case c >= 1000 && c <= 1014:
		return c != CloseReserved && c != CloseNoStatusReceived && c != CloseAbnormalClosure
	case c >= 3000 && c <= 4999:
		return true
	default:
		return false
	}
}

// Propagated returns the code to forward to the peer when the other side
// closed with c.
func (c CloseCode) Propagated() CloseCode {
	if c.Sendable() {
		return c
	}
	return CloseNormalClosure
}

// closeCodeOf extracts the close code carried by a read error, or -1 when
// the connection failed without a close frame.
func closeCodeOf(err error) CloseCode {
	return CloseCode(ws.CloseStatus(err))
}

// ConnectionInfo is the management view of a bridged session.
type ConnectionInfo struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	Upstream         string    `json:"upstream"`
	ConnectedAt      time.Time `json:"connectedAt"`
	MessagesSent     int64     `json:"messagesSent"`
	MessagesReceived int64     `json:"messagesReceived"`
	LastActivity     time.Time `json:"lastActivity"`
}

// MessageEntry summarizes one relayed frame in the message log.
type MessageEntry struct {
	ConnectionID string    `json:"connectionId"`
	Direction    string    `json:"direction"`
	Type         string    `json:"type"`
	Size         int       `json:"size"`
	Data         string    `json:"data"`
	Blocked      bool      `json:"blocked,omitempty"`
	Modified     bool      `json:"modified,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
