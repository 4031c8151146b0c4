package recording

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/util"
)

// MessageFolder is the library folder holding captured WebSocket messages.
const MessageFolder = "websocket"

// MessageRecord is one captured WebSocket message.
type MessageRecord struct {
	ConnectionID string    `json:"connectionId"`
	URL          string    `json:"url"`
	Direction    string    `json:"direction"`
	Binary       bool      `json:"binary"`
	Size         int       `json:"size"`
	Timestamp    time.Time `json:"timestamp"`
	// Data is decoded JSON, a string, or base64 for binary payloads.
	Data     any    `json:"data"`
	Encoding string `json:"encoding,omitempty"`
}

// MessageRecorder writes WebSocket messages as individual files under
// {root}/{connectionId}/{direction}_{timestamp}_{seq}.json.
type MessageRecorder struct {
	root string
	log  *slog.Logger
	seq  atomic.Uint64
}

// NewMessageRecorder creates a recorder writing below root.
func NewMessageRecorder(root string, log *slog.Logger) *MessageRecorder {
	return &MessageRecorder{root: root, log: logging.OrNop(log)}
}

// Write stores one message and returns the file path.
func (m *MessageRecorder) Write(connectionID, url, direction string, binary bool, data []byte, at time.Time) (string, error) {
	dir, ok := util.SafeJoin(m.root, connectionID)
	if !ok || connectionID == "" {
		return "", fmt.Errorf("%w: connection %q", ErrInvalidPath, connectionID)
	}
	if at.IsZero() {
		at = time.Now()
	}

	rec := &MessageRecord{
		ConnectionID: connectionID,
		URL:          url,
		Direction:    direction,
		Binary:       binary,
		Size:         len(data),
		Timestamp:    at.UTC(),
	}
	switch {
	case binary || !utf8.Valid(data):
		rec.Data = base64.StdEncoding.EncodeToString(data)
		rec.Encoding = "base64"
	default:
		rec.Data = decodeBody(data)
	}

	out, err := marshalMessage(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", storageErr("mkdir", dir, err)
	}
	name := fmt.Sprintf("%s_%s_%06d.json", direction, Timestamp(at), m.seq.Add(1))
	p := filepath.Join(dir, name)
	if err := writeAtomic(p, out); err != nil {
		return "", storageErr("write", p, err)
	}
	m.log.Debug("websocket message recorded", "connectionId", connectionID, "file", p)
	return p, nil
}
