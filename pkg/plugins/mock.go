package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/plugin"
	"github.com/getmockd/interceptd/pkg/recording"
	"github.com/getmockd/interceptd/pkg/rules"
)

// Values of the X-Mock-Source header on mocked responses.
const (
	HeaderMockSource   = "X-Mock-Source"
	MockSourceRecord   = "recording"
	MockSourceFallback = "fallback"
)

type mock struct {
	library *recording.Library
	log     *slog.Logger

	mu     sync.Mutex
	raw    string
	parsed *rules.RuleSet
}

// NewMock returns the mock plugin registration. Its configuration is a rule
// set document.
func NewMock(library *recording.Library, log *slog.Logger) plugin.Registration {
	return plugin.Registration{
		Name:        NameMock,
		Description: "Return recorded responses according to the active rule set",
		Options: map[string]plugin.Option{
			"rules":             {Type: "array", Default: []any{}, Label: "Rules", Description: "Ordered rules, first match wins"},
			"fallback":          {Type: "text", Default: string(rules.ActionPass), Label: "Fallback", Description: "Action when no rule matches (PASS or RET_REC)"},
			"fallback_fallback": {Type: "text", Default: string(rules.FallbackPass), Label: "Missing Recording", Description: "What to do when no recording exists (PASS, 500 or 200)"},
			"recordingsFolder":  {Type: "text", Default: recording.DefaultFolder, Label: "Recordings Folder", Description: "Folder to replay recordings from"},
		},
		Handler: &mock{library: library, log: logging.OrNop(log)},
	}
}

func (m *mock) OnRequest(ctx context.Context, rc *plugin.RequestContext) (*plugin.Result, error) {
	rs, err := m.ruleSet(rc.Config)
	if err != nil {
		return nil, err
	}

	r := rc.Request
	out := rs.Evaluate(r.Method, r.URL.Path)
	if out.Action != rules.ActionReturnRecording {
		return nil, nil
	}

	if rec := m.find(rs.Folder(), r.Method, r.URL.RequestURI(), len(rc.Body) > 0); rec != nil {
		m.log.DebugContext(ctx, "serving recording", "method", r.Method, "uri", rec.URI)
		return mockResult(recordingResponse(rec), "recording"), nil
	}

	switch out.Fallback {
	case rules.FallbackError:
		body, _ := json.Marshal(map[string]string{"error": "No recording found"})
		return mockResult(&plugin.MockResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{"Content-Type": "application/json", HeaderMockSource: MockSourceFallback},
			Body:       body,
		}, "fallback-500"), nil
	case rules.FallbackEmpty:
		return mockResult(&plugin.MockResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{HeaderMockSource: MockSourceFallback},
			Body:       []byte{},
		}, "fallback-200"), nil
	}
	return nil, nil
}

func (m *mock) find(folder, method, uri string, hasBody bool) *recording.Recording {
	if m.library == nil {
		return nil
	}
	store, err := m.library.Folder(folder)
	if err != nil {
		m.log.Warn("invalid recordings folder", "folder", folder, "error", err)
		return nil
	}
	rec, err := store.Find(method, uri, hasBody)
	if err != nil {
		if !errors.Is(err, recording.ErrNotFound) {
			m.log.Warn("recording lookup failed", "uri", uri, "error", err)
		}
		return nil
	}
	return rec
}

// ruleSet decodes the configured rule set, reusing the last result while
// the configuration is unchanged.
func (m *mock) ruleSet(cfg plugin.Config) (*rules.RuleSet, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.parsed != nil && m.raw == string(raw) {
		return m.parsed, nil
	}
	rs, err := rules.FromMap(cfg)
	if err != nil {
		return nil, err
	}
	m.raw, m.parsed = string(raw), rs
	return rs, nil
}

func recordingResponse(rec *recording.Recording) *plugin.MockResponse {
	status := rec.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	body, isJSON := rec.Body()
	headers := map[string]string{HeaderMockSource: MockSourceRecord}
	if isJSON {
		headers["Content-Type"] = "application/json"
	}
	if body == nil {
		body = []byte{}
	}
	return &plugin.MockResponse{StatusCode: status, Headers: headers, Body: body}
}

func mockResult(resp *plugin.MockResponse, source string) *plugin.Result {
	return &plugin.Result{
		Action:         plugin.ActionMock,
		Mock:           resp,
		Metadata:       map[string]any{"mockSource": source},
		StopProcessing: true,
	}
}
