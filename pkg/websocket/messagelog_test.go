package websocket

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(conn string, n int) MessageEntry {
	return MessageEntry{ConnectionID: conn, Data: fmt.Sprint(n)}
}

func entryData(entries []MessageEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

func TestMessageLog_EvictsOldest(t *testing.T) {
	l := NewMessageLog(3)
	for i := range 5 {
		l.Append(entry("a", i))
	}
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []string{"2", "3", "4"}, entryData(l.List(0, "")))
}

func TestMessageLog_ListFilters(t *testing.T) {
	l := NewMessageLog(10)
	l.Append(entry("a", 1))
	l.Append(entry("b", 2))
	l.Append(entry("a", 3))
	l.Append(entry("a", 4))

	assert.Equal(t, []string{"3", "4"}, entryData(l.List(2, "a")))
	assert.Equal(t, []string{"2"}, entryData(l.List(0, "b")))
	assert.Empty(t, l.List(5, "missing"))
}

func TestMessageLog_SetCapacityAndClear(t *testing.T) {
	l := NewMessageLog(10)
	for i := range 6 {
		l.Append(entry("a", i))
	}
	l.SetCapacity(2)
	assert.Equal(t, []string{"4", "5"}, entryData(l.List(0, "")))

	l.Clear()
	assert.Equal(t, 0, l.Len())
}

func TestMessageLog_ConcurrentAppend(t *testing.T) {
	l := NewMessageLog(50)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				l.Append(entry(fmt.Sprint(g), i))
				_ = l.List(10, "")
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 50, l.Len())
}

func TestTable_AddRemove(t *testing.T) {
	tbl := NewTable()
	a := newConnection("ws-a", "/a", "/a")
	b := newConnection("ws-b", "/b", "/b")
	tbl.Add(a)
	tbl.Add(b)

	assert.Equal(t, 2, tbl.Len())
	assert.Same(t, a, tbl.Get("ws-a"))
	list := tbl.List()
	require.Len(t, list, 2)
	assert.Equal(t, "ws-a", list[0].ID)

	tbl.Remove("ws-a")
	tbl.Remove("ws-a")
	assert.Nil(t, tbl.Get("ws-a"))
	assert.Equal(t, 1, tbl.Len())
}
