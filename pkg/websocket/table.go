package websocket

import (
	"slices"
	"strings"
	"sync"
)

// Table tracks live bridged connections by ID.
type Table struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewTable creates an empty connection table.
func NewTable() *Table {
	return &Table{connections: make(map[string]*Connection)}
}

// Add registers conn.
func (t *Table) Add(conn *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connections[conn.id] = conn
}

// Remove unregisters the connection with the given ID. Unknown IDs are ignored.
func (t *Table) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.connections, id)
}

// Get returns the connection with the given ID, or nil.
func (t *Table) Get(id string) *Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connections[id]
}

// Len returns the number of live connections.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.connections)
}

// List returns snapshots of all live connections, oldest first.
func (t *Table) List() []*ConnectionInfo {
	t.mu.RLock()
	infos := make([]*ConnectionInfo, 0, len(t.connections))
	for _, c := range t.connections {
		infos = append(infos, c.Info())
	}
	t.mu.RUnlock()

	slices.SortFunc(infos, func(a, b *ConnectionInfo) int {
		if c := a.ConnectedAt.Compare(b.ConnectedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// Close closes the connection with the given ID.
func (t *Table) Close(id, reason string) error {
	conn := t.Get(id)
	if conn == nil {
		return ErrConnectionNotFound
	}
	conn.Close(reason)
	return nil
}

// CloseAll closes every live connection.
func (t *Table) CloseAll(reason string) {
	t.mu.RLock()
	conns := make([]*Connection, 0, len(t.connections))
	for _, c := range t.connections {
		conns = append(conns, c)
	}
	t.mu.RUnlock()
	for _, c := range conns {
		c.Close(reason)
	}
}
