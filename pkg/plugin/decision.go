package plugin

import (
	"maps"
	"net/http"
)

// Stage identifies one of the three call sites of the pipeline.
type Stage string

const (
	// StageRequest runs for every intercepted HTTP request.
	StageRequest Stage = "request"
	// StageUpgrade runs for every WebSocket upgrade request.
	StageUpgrade Stage = "upgrade"
	// StageMessage runs for every relayed WebSocket message.
	StageMessage Stage = "message"
)

// DefaultAction returns the action a Decision carries when no plugin sets one.
func (s Stage) DefaultAction() Action {
	if s == StageMessage {
		return ActionForward
	}
	return ActionProxy
}

// Action is the terminal outcome of a pipeline run.
type Action string

const (
	// ActionProxy forwards the request or upgrade to the upstream target.
	ActionProxy Action = "proxy"
	// ActionMock answers the request from Decision.Mock without contacting upstream.
	ActionMock Action = "mock"
	// ActionBlock rejects an upgrade or drops a message.
	ActionBlock Action = "block"
	// ActionForward relays a WebSocket message to the peer.
	ActionForward Action = "forward"
)

// Metadata keys written by the executor.
const (
	MetaErrors    = "errors"
	MetaStoppedBy = "stoppedBy"
	MetaBlockedBy = "blockedBy"
)

// RelayMode tells the HTTP relay how to handle the upstream response.
type RelayMode int

const (
	// RelayStream copies the upstream response to the client as bytes arrive.
	RelayStream RelayMode = iota
	// RelayBuffer reads the whole upstream body and applies the response transform.
	RelayBuffer
)

// RequestPatch modifies the request forwarded upstream.
// A nil Body leaves the buffered client body untouched.
type RequestPatch struct {
	Headers map[string]string
	Body    []byte
}

// MockResponse is served directly to the client when Action is ActionMock.
type MockResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// ResponseMeta describes the upstream response handed to a ResponseTransform.
type ResponseMeta struct {
	StatusCode int
	Header     http.Header
	Request    *http.Request
	// RequestBody is the buffered body that was sent upstream.
	RequestBody []byte
}

// ResponsePatch overrides parts of the upstream response.
// Zero StatusCode keeps the upstream status; nil Body keeps the upstream body
// (use an empty non-nil slice to clear it).
type ResponsePatch struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// ResponseTransform inspects a fully buffered upstream response and returns
// an optional patch. A nil patch leaves the response unchanged.
type ResponseTransform func(meta *ResponseMeta, body []byte) (*ResponsePatch, error)

// Decision is the merged outcome of one pipeline run.
type Decision struct {
	Stage           Stage
	Action          Action
	ModifyRequest   *RequestPatch
	ModifyResponse  ResponseTransform
	Mock            *MockResponse
	ModifiedMessage []byte
	Metadata        map[string]any
	StopProcessing  bool
	// Mode switches to RelayBuffer as soon as any plugin installs a
	// response transform.
	Mode RelayMode
}

// NewDecision returns a fresh Decision carrying the stage default action.
func NewDecision(stage Stage) *Decision {
	return &Decision{
		Stage:    stage,
		Action:   stage.DefaultAction(),
		Metadata: make(map[string]any),
	}
}

// Result is the partial decision returned by a handler. Zero-valued fields
// leave the running Decision untouched.
type Result struct {
	Action          Action
	ModifyRequest   *RequestPatch
	ModifyResponse  ResponseTransform
	Mock            *MockResponse
	ModifiedMessage []byte
	Metadata        map[string]any
	StopProcessing  bool
	// Mode may force RelayBuffer without a transform, e.g. to capture the
	// full response body.
	Mode RelayMode
}

// Merge applies r onto d: set fields overwrite, metadata is shallow-merged.
func (d *Decision) Merge(r *Result) {
	if r == nil {
		return
	}
	if r.Action != "" {
		d.Action = r.Action
	}
	if r.ModifyRequest != nil {
		d.ModifyRequest = r.ModifyRequest
	}
	if r.ModifyResponse != nil {
		d.ModifyResponse = r.ModifyResponse
		d.Mode = RelayBuffer
	}
	if r.Mode == RelayBuffer {
		d.Mode = RelayBuffer
	}
	if r.Mock != nil {
		d.Mock = r.Mock
	}
	if r.ModifiedMessage != nil {
		d.ModifiedMessage = r.ModifiedMessage
	}
	if len(r.Metadata) > 0 {
		if d.Metadata == nil {
			d.Metadata = make(map[string]any, len(r.Metadata))
		}
		maps.Copy(d.Metadata, r.Metadata)
	}
	if r.StopProcessing {
		d.StopProcessing = true
	}
}

// Clone returns a copy of d safe to hand to a handler. The metadata map is
// copied; patches and mock payloads are shared.
func (d *Decision) Clone() Decision {
	c := *d
	c.Metadata = maps.Clone(d.Metadata)
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	return c
}

// RelayMode reports whether the relay must buffer the upstream response.
func (d *Decision) RelayMode() RelayMode {
	if d.ModifyResponse != nil {
		return RelayBuffer
	}
	return d.Mode
}

// Errors returns the plugin failures recorded during the run.
func (d *Decision) Errors() []*PluginError {
	errs, _ := d.Metadata[MetaErrors].([]*PluginError)
	return errs
}

// StoppedBy returns the plugin that ended the run early, if any.
func (d *Decision) StoppedBy() string {
	name, _ := d.Metadata[MetaStoppedBy].(string)
	return name
}

func (d *Decision) addError(err *PluginError) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]any)
	}
	d.Metadata[MetaErrors] = append(d.Errors(), err)
}
