package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/interceptd/pkg/metrics"
	"github.com/getmockd/interceptd/pkg/plugin"
)

func newRelay(t *testing.T, upstream string, regs ...plugin.Registration) *Proxy {
	t.Helper()
	reg := plugin.NewRegistry()
	for _, r := range regs {
		r.Enabled = true
		require.NoError(t, reg.Register(r))
	}
	target := StaticTarget{ID: "test"}
	if upstream != "" {
		u, err := url.Parse(upstream)
		require.NoError(t, err)
		target.URL = u
	}
	return New(Options{
		Executor:  plugin.NewExecutor(reg, nil),
		Targets:   target,
		APIPrefix: "/__proxy",
	})
}

func requestPlugin(name string, fn plugin.RequestFunc) plugin.Registration {
	return plugin.Registration{Name: name, Handler: fn}
}

func TestProxy_ForwardsToTarget(t *testing.T) {
	var gotPath, gotQuery, gotBody, gotHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotHost = r.Host
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer upstream.Close()

	p := newRelay(t, upstream.URL+"/base")
	req := httptest.NewRequest(http.MethodPost, "http://localhost:9000/api/users?limit=5", strings.NewReader(`{"a":1}`))
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "created", rec.Body.String())
	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))
	assert.Equal(t, "/base/api/users", gotPath)
	assert.Equal(t, "limit=5", gotQuery)
	assert.Equal(t, `{"a":1}`, gotBody)
	assert.Equal(t, strings.TrimPrefix(upstream.URL, "http://"), gotHost)
}

func TestProxy_HeaderPrecedence(t *testing.T) {
	var got http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer upstream.Close()

	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	reg := plugin.NewRegistry()
	require.NoError(t, reg.Register(plugin.Registration{
		Name:    "headers",
		Enabled: true,
		Handler: plugin.RequestFunc(func(context.Context, *plugin.RequestContext) (*plugin.Result, error) {
			return &plugin.Result{ModifyRequest: &plugin.RequestPatch{Headers: map[string]string{
				"X-Plugin": "plugin",
				"X-Both":   "plugin",
			}}}, nil
		}),
	}))
	p := New(Options{
		Executor: plugin.NewExecutor(reg, nil),
		Targets:  StaticTarget{URL: u, Headers: map[string]string{"X-Both": "config", "Authorization": "Bearer cfg"}},
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Plugin", "client")
	req.Header.Set("X-Client", "client")
	req.Header.Set("Authorization", "Bearer client")
	req.Header.Set("Connection", "keep-alive, X-Secret")
	req.Header.Set("X-Secret", "hop")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "client", got.Get("X-Client"))
	assert.Equal(t, "plugin", got.Get("X-Plugin"))
	assert.Equal(t, "config", got.Get("X-Both"))
	assert.Equal(t, "Bearer cfg", got.Get("Authorization"))
	assert.Empty(t, got.Get("X-Secret"))
	assert.Empty(t, got.Get("Proxy-Authorization"))
	assert.Equal(t, "example.com", got.Get("X-Forwarded-Host"))
	assert.Equal(t, "http", got.Get("X-Forwarded-Proto"))
	assert.Equal(t, "192.0.2.1", got.Get("X-Forwarded-For"))
}

func TestProxy_MockShortCircuits(t *testing.T) {
	called := false
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer upstream.Close()

	p := newRelay(t, upstream.URL,
		requestPlugin("mocker", func(context.Context, *plugin.RequestContext) (*plugin.Result, error) {
			return &plugin.Result{
				Action:         plugin.ActionMock,
				Mock:           &plugin.MockResponse{StatusCode: http.StatusTeapot, Headers: map[string]string{"Content-Type": "text/plain"}, Body: []byte("short")},
				StopProcessing: true,
			}, nil
		}),
		requestPlugin("after", func(context.Context, *plugin.RequestContext) (*plugin.Result, error) {
			t.Error("plugin after a stopping plugin must not run")
			return nil, nil
		}),
	)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short", rec.Body.String())
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestProxy_ModifiedRequestBody(t *testing.T) {
	var gotBody string
	var gotLength int64
	upstream := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotLength = r.ContentLength
	}))
	defer upstream.Close()

	p := newRelay(t, upstream.URL,
		requestPlugin("body", func(_ context.Context, rc *plugin.RequestContext) (*plugin.Result, error) {
			return &plugin.Result{ModifyRequest: &plugin.RequestPatch{Body: append(rc.Body, []byte("-patched")...)}}, nil
		}),
	)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/x", strings.NewReader("orig")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "orig-patched", gotBody)
	assert.Equal(t, int64(len("orig-patched")), gotLength)
}

func TestProxy_StreamsWithoutTransform(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Type", "text/event-stream")
		for i := range 3 {
			_, _ = io.WriteString(w, "data: "+strconv.Itoa(i)+"\n\n")
			w.(http.Flusher).Flush()
		}
	}))
	defer upstream.Close()

	p := newRelay(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, rec.Flushed)
	assert.Equal(t, "data: 0\n\ndata: 1\n\ndata: 2\n\n", rec.Body.String())
}

func TestProxy_BufferedTransform(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"name":"alice"}`))
	}))
	defer upstream.Close()

	var meta *plugin.ResponseMeta
	p := newRelay(t, upstream.URL,
		requestPlugin("transform", func(context.Context, *plugin.RequestContext) (*plugin.Result, error) {
			return &plugin.Result{ModifyResponse: func(m *plugin.ResponseMeta, body []byte) (*plugin.ResponsePatch, error) {
				meta = m
				var v map[string]any
				if err := json.Unmarshal(body, &v); err != nil {
					return nil, err
				}
				v["name"] = "bob-the-builder"
				out, _ := json.Marshal(v)
				return &plugin.ResponsePatch{StatusCode: http.StatusAccepted, Headers: map[string]string{"X-Patched": "1"}, Body: out}, nil
			}}, nil
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader("req"))
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	require.NotNil(t, meta)
	assert.Equal(t, http.StatusOK, meta.StatusCode)
	assert.Equal(t, "req", string(meta.RequestBody))
	assert.Equal(t, "/users", meta.Request.URL.Path)

	want := `{"name":"bob-the-builder"}`
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, want, rec.Body.String())
	assert.Equal(t, strconv.Itoa(len(want)), rec.Header().Get("Content-Length"))
	assert.Equal(t, "1", rec.Header().Get("X-Patched"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestProxy_BufferedKeepsUpstreamContentLength(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "1234")
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	headerOnly := requestPlugin("cors", func(context.Context, *plugin.RequestContext) (*plugin.Result, error) {
		return &plugin.Result{ModifyResponse: func(*plugin.ResponseMeta, []byte) (*plugin.ResponsePatch, error) {
			return &plugin.ResponsePatch{Headers: map[string]string{"Access-Control-Allow-Origin": "*"}}, nil
		}}, nil
	})
	p := newRelay(t, upstream.URL, headerOnly)

	t.Run("head", func(t *testing.T) {
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/file", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "1234", rec.Header().Get("Content-Length"))
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Body.String())
	})

	t.Run("get unchanged body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file", nil))

		assert.Equal(t, "hello", rec.Body.String())
		assert.Equal(t, "5", rec.Header().Get("Content-Length"))
	})
}

func TestProxy_TransformErrorIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	p := newRelay(t, upstream.URL,
		requestPlugin("broken", func(context.Context, *plugin.RequestContext) (*plugin.Result, error) {
			return &plugin.Result{ModifyResponse: func(*plugin.ResponseMeta, []byte) (*plugin.ResponsePatch, error) {
				return nil, errors.New("boom")
			}}, nil
		}),
	)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Proxy Response Error", body["error"])
}

func TestProxy_UpstreamFailureIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	p := newRelay(t, addr)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Bad Gateway", body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestProxy_NoTarget(t *testing.T) {
	p := newRelay(t, "")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrNoTarget.Error())
}

func TestProxy_BodyTooLarge(t *testing.T) {
	p := New(Options{MaxBodySize: 4, Targets: StaticTarget{}})
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("12345")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestProxy_Metrics(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer upstream.Close()

	p := newRelay(t, upstream.URL,
		requestPlugin("broken", func(context.Context, *plugin.RequestContext) (*plugin.Result, error) {
			return nil, errors.New("boom")
		}),
		requestPlugin("mocker", func(_ context.Context, rc *plugin.RequestContext) (*plugin.Result, error) {
			if rc.Request.URL.Path != "/mock" {
				return nil, nil
			}
			return &plugin.Result{Action: plugin.ActionMock, Mock: &plugin.MockResponse{}, StopProcessing: true}, nil
		}),
	)
	m := metrics.NewInstruments(nil)
	p.metrics = m

	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mock", nil))
	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/real", nil))
	upstream.Close()
	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/down", nil))

	var sb strings.Builder
	require.NoError(t, m.Registry().WriteText(&sb))
	out := sb.String()
	assert.Contains(t, out, `interceptd_requests_total{method="GET",outcome="mock",status="200"} 1`)
	assert.Contains(t, out, `interceptd_requests_total{method="POST",outcome="forward",status="202"} 1`)
	assert.Contains(t, out, `interceptd_requests_total{method="GET",outcome="error",status="502"} 1`)
	assert.Contains(t, out, "interceptd_upstream_errors_total 1")
	assert.Contains(t, out, `interceptd_plugin_errors_total{plugin="broken",stage="request"} 3`)
}

func TestProxy_Dispatch(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })

	p := newRelay(t, "")
	p.SetAPI(api)
	p.SetWebSocket(ws)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"api root", "/__proxy", nil, http.StatusNoContent},
		{"api nested", "/__proxy/plugins", nil, http.StatusNoContent},
		{"api prefix lookalike", "/__proxyx", nil, http.StatusBadGateway},
		{"upgrade", "/ws", map[string]string{"Connection": "keep-alive, Upgrade", "Upgrade": "websocket"}, http.StatusAccepted},
		{"upgrade without connection token", "/ws", map[string]string{"Upgrade": "websocket"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			p.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestUpstreamURL(t *testing.T) {
	tests := []struct {
		target, in, want string
	}{
		{"http://up:8080", "/a/b?x=1", "http://up:8080/a/b?x=1"},
		{"http://up:8080/", "/a", "http://up:8080/a"},
		{"http://up:8080/base/", "/a", "http://up:8080/base/a"},
		{"http://up:8080/base", "/", "http://up:8080/base"},
		{"http://up:8080/base?k=v", "/a?x=1", "http://up:8080/base/a?k=v&x=1"},
	}
	for _, tt := range tests {
		t.Run(tt.target+tt.in, func(t *testing.T) {
			target, err := url.Parse(tt.target)
			require.NoError(t, err)
			in, err := url.Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, UpstreamURL(target, in).String())
		})
	}
}

func TestRemoveHopByHopHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Connection", "close, X-Drop")
	h.Set("X-Drop", "1")
	h.Set("Keep-Alive", "timeout=5")
	h.Set("Transfer-Encoding", "chunked")
	h.Set("X-Keep", "1")
	removeHopByHopHeaders(h)
	assert.Equal(t, http.Header{"X-Keep": {"1"}}, h)
}
