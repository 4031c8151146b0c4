package websocket

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	ws "github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/getmockd/interceptd/internal/id"
	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/httputil"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/metrics"
	"github.com/getmockd/interceptd/pkg/plugin"
	"github.com/getmockd/interceptd/pkg/proxy"
	"github.com/getmockd/interceptd/pkg/recording"
	"github.com/getmockd/interceptd/pkg/util"
)

// maxLoggedData caps the payload preview kept in the message log.
const maxLoggedData = 1024

// Options configures a Bridge.
type Options struct {
	Executor *plugin.Executor
	Targets  proxy.TargetSource
	Settings config.WebSocketConfig
	// Recorder captures frames to disk when Settings.RecordMessages is set.
	Recorder *recording.MessageRecorder
	// Client is used to dial upstream; it must not set a Timeout.
	Client  *http.Client
	Metrics *metrics.Instruments
	Logger  *slog.Logger
}

// Bridge accepts client upgrades and relays them to the upstream target.
type Bridge struct {
	executor *plugin.Executor
	targets  proxy.TargetSource
	recorder *recording.MessageRecorder
	client   *http.Client
	table    *Table
	messages *MessageLog
	metrics  *metrics.Instruments
	log      *slog.Logger

	mu       sync.RWMutex
	settings config.WebSocketConfig
	// closed rejects new upgrades once Shutdown began. Sessions are added
	// to the table and to wg under mu so Shutdown never misses one.
	closed bool

	wg sync.WaitGroup
}

// NewBridge creates a Bridge.
func NewBridge(opts Options) *Bridge {
	client := opts.Client
	if client == nil {
		client = proxy.NewUpstreamClient()
	}
	executor := opts.Executor
	if executor == nil {
		executor = plugin.NewExecutor(plugin.NewRegistry(), opts.Logger)
	}
	return &Bridge{
		executor: executor,
		targets:  opts.Targets,
		recorder: opts.Recorder,
		client:   client,
		table:    NewTable(),
		messages: NewMessageLog(opts.Settings.MessageLogSize),
		metrics:  opts.Metrics,
		log:      logging.OrNop(opts.Logger),
		settings: opts.Settings,
	}
}

// Connections returns the live connection table.
func (b *Bridge) Connections() *Table { return b.table }

// Messages returns the shared message log.
func (b *Bridge) Messages() *MessageLog { return b.messages }

// Settings returns the current bridge settings.
func (b *Bridge) Settings() config.WebSocketConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// SetSettings replaces the bridge settings. Live connections pick up the
// logging and recording flags on their next frame.
func (b *Bridge) SetSettings(s config.WebSocketConfig) {
	b.mu.Lock()
	b.settings = s
	b.mu.Unlock()
	b.messages.SetCapacity(s.MessageLogSize)
}

// Shutdown closes every live connection and waits for the relays to end
// or ctx to expire.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.table.CloseAll("proxy shutting down")
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeHTTP handles a WebSocket upgrade request.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	settings := b.Settings()
	if !settings.Enabled {
		httputil.WriteServiceUnavailable(w, "Service Unavailable", ErrDisabled.Error())
		return
	}

	d := b.executor.RunUpgrade(r.Context(), r)
	if d.Action == plugin.ActionBlock {
		by := d.StoppedBy()
		if name, ok := d.Metadata[plugin.MetaBlockedBy].(string); ok {
			by = name
		}
		b.log.Info("websocket upgrade blocked", "url", r.URL.RequestURI(), "blockedBy", by)
		httputil.WriteForbidden(w, "Forbidden", ErrUpgradeBlocked.Error())
		return
	}

	if b.targets == nil {
		httputil.WriteBadGateway(w, "Bad Gateway", proxy.ErrNoTarget.Error())
		return
	}
	target, err := b.targets.Target()
	if err != nil {
		httputil.WriteBadGateway(w, "Bad Gateway", err.Error())
		return
	}
	upstreamURL := WebSocketURL(proxy.UpstreamURL(target.URL, r.URL))

	conn := newConnection(id.Connection(), r.URL.RequestURI(), r.URL.Path)
	if err := b.register(conn); err != nil {
		if errors.Is(err, ErrMaxConnectionsReached) {
			b.log.Warn("websocket connection limit reached", "max", settings.MaxConnections)
		}
		httputil.WriteServiceUnavailable(w, "Service Unavailable", err.Error())
		return
	}
	relaying := false
	defer func() {
		if !relaying {
			b.table.Remove(conn.id)
			b.wg.Done()
		}
	}()

	client, err := ws.Accept(w, r, &ws.AcceptOptions{
		Subprotocols:       requestedSubprotocols(r),
		InsecureSkipVerify: true,
		CompressionMode:    ws.CompressionDisabled,
	})
	if err != nil {
		b.log.Warn("websocket accept failed", "url", conn.url, "error", err)
		return
	}

	// The handshake is done; the session outlives the upgrade request.
	ctx := context.WithoutCancel(r.Context())
	peer, _, err := ws.Dial(ctx, upstreamURL.String(), &ws.DialOptions{
		HTTPClient:      b.client,
		HTTPHeader:      dialHeaders(r.Header, target.Headers),
		Subprotocols:    subprotocolsOf(client),
		CompressionMode: ws.CompressionDisabled,
	})
	if err != nil {
		b.log.Warn("websocket upstream dial failed", "id", conn.id, "upstream", upstreamURL.String(), "error", err)
		_ = client.Close(ws.StatusCode(CloseBadGateway), "upstream unavailable")
		return
	}

	limit := settings.MaxMessageSize
	if limit <= 0 {
		limit = config.DefaultMaxMessageSize
	}
	client.SetReadLimit(limit)
	peer.SetReadLimit(limit)
	if reason, ok := conn.attach(client, peer, upstreamURL.String()); !ok {
		b.log.Info("websocket closed before relay started", "id", conn.id, "reason", reason)
		go func() { _ = peer.Close(ws.StatusNormalClosure, reason) }()
		_ = client.Close(ws.StatusNormalClosure, reason)
		return
	}
	b.metrics.ConnectionOpened()

	b.log.Info("websocket connected", "id", conn.id, "url", conn.url, "upstream", upstreamURL.String())

	relaying = true
	go func() {
		defer b.wg.Done()
		b.relay(ctx, conn, client, peer)
	}()
}

// register adds conn to the table and to the shutdown wait group. Both
// the limit and the shutdown state are checked under the same lock as
// the insertion, so the cap is exact.
func (b *Bridge) register(conn *Connection) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrShuttingDown
	}
	if limit := b.settings.MaxConnections; limit > 0 && b.table.Len() >= limit {
		return ErrMaxConnectionsReached
	}
	b.table.Add(conn)
	b.wg.Add(1)
	return nil
}

// relay pumps frames both ways until either side closes.
func (b *Bridge) relay(ctx context.Context, conn *Connection, client, peer *ws.Conn) {
	defer func() {
		_ = client.CloseNow()
		_ = peer.CloseNow()
		b.table.Remove(conn.id)
		b.metrics.ConnectionClosed()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.pump(gctx, conn, client, peer, plugin.DirectionClientToServer)
	})
	g.Go(func() error {
		return b.pump(gctx, conn, peer, client, plugin.DirectionServerToClient)
	})
	err := g.Wait()

	b.log.Info("websocket closed", "id", conn.id, "received", conn.MessagesReceived(), "sent", conn.MessagesSent(), "reason", err)
}

// pump reads from src and forwards to dst. When src ends, dst is closed with
// the propagated code and the error describing why src ended is returned.
func (b *Bridge) pump(ctx context.Context, conn *Connection, src, dst *ws.Conn, dir plugin.Direction) error {
	for {
		typ, data, err := src.Read(ctx)
		if err != nil {
			code := closeCodeOf(err).Propagated()
			var ce ws.CloseError
			reason := ""
			if errors.As(err, &ce) {
				reason = ce.Reason
			}
			_ = dst.Close(ws.StatusCode(code), reason)
			return fmt.Errorf("%s: %w", dir, err)
		}

		out, blocked := b.intercept(ctx, conn, MessageType(typ), data, dir)
		if blocked {
			continue
		}
		if err := dst.Write(ctx, typ, out); err != nil {
			_ = src.Close(ws.StatusNormalClosure, "")
			return fmt.Errorf("%s write: %w", dir, err)
		}
	}
}

// intercept logs one frame, runs it through the message stage and returns
// the payload to deliver.
func (b *Bridge) intercept(ctx context.Context, conn *Connection, typ MessageType, data []byte, dir plugin.Direction) ([]byte, bool) {
	now := time.Now()
	conn.touch(now)
	if dir == plugin.DirectionClientToServer {
		conn.messagesRecv.Add(1)
	} else {
		conn.messagesSent.Add(1)
	}

	settings := b.Settings()
	binary := typ == MessageBinary
	if settings.LogMessages {
		b.log.Info("websocket message", "id", conn.id, "direction", string(dir), "type", typ.String(), "size", len(data))
	}
	if settings.RecordMessages && b.recorder != nil {
		if _, err := b.recorder.Write(conn.id, conn.url, string(dir), binary, data, now); err != nil {
			b.log.Warn("failed to record websocket message", "id", conn.id, "error", err)
		}
	}

	d := b.executor.RunMessage(ctx, plugin.Message{
		ConnectionID: conn.id,
		Path:         conn.path,
		Direction:    dir,
		Binary:       binary,
		Data:         data,
	})
	out := d.ModifiedMessage
	if out == nil {
		out = data
	}
	blocked := d.Action == plugin.ActionBlock
	modified := !blocked && string(out) != string(data)

	b.messages.Append(MessageEntry{
		ConnectionID: conn.id,
		Direction:    string(dir),
		Type:         typ.String(),
		Size:         len(data),
		Data:         preview(out, binary),
		Blocked:      blocked,
		Modified:     modified,
		Timestamp:    now,
	})
	switch {
	case blocked:
		b.metrics.Message(string(dir), metrics.MessageBlocked)
	case modified:
		b.metrics.Message(string(dir), metrics.MessageModified)
	default:
		b.metrics.Message(string(dir), metrics.MessageRelayed)
	}
	if blocked {
		b.log.Debug("websocket message blocked", "id", conn.id, "direction", string(dir), "blockedBy", d.Metadata[plugin.MetaBlockedBy])
	}
	return out, blocked
}

func preview(data []byte, binary bool) string {
	if binary {
		return util.TruncateBody(base64.StdEncoding.EncodeToString(data), maxLoggedData)
	}
	return util.TruncateBody(string(data), maxLoggedData)
}

// WebSocketURL maps an http(s) URL onto ws(s).
func WebSocketURL(u *url.URL) *url.URL {
	out := *u
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		out.Scheme = "wss"
	default:
		out.Scheme = "ws"
	}
	return &out
}

// handshakeHeaders are produced by the dialer itself.
var handshakeHeaders = []string{
	"Host",
	"Connection",
	"Upgrade",
	"Sec-Websocket-Key",
	"Sec-Websocket-Version",
	"Sec-Websocket-Extensions",
	"Sec-Websocket-Protocol",
	"Sec-Websocket-Accept",
	"Content-Length",
	"Keep-Alive",
	"Proxy-Connection",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
}

func dialHeaders(in http.Header, static map[string]string) http.Header {
	h := in.Clone()
	for _, name := range handshakeHeaders {
		h.Del(name)
	}
	for k, v := range static {
		h.Set(k, v)
	}
	return h
}

func requestedSubprotocols(r *http.Request) []string {
	var out []string
	for _, v := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func subprotocolsOf(c *ws.Conn) []string {
	if p := c.Subprotocol(); p != "" {
		return []string{p}
	}
	return nil
}
