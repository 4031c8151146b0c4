package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/plugins"
)

func newUpstream(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", name)
		_, _ = io.WriteString(w, name+" "+r.URL.Path+" "+r.Header.Get("X-Env"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, target string) *config.ProxyConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.RulesDir = filepath.Join(dir, "rules")
	cfg.RecordingsDir = filepath.Join(dir, "recordings")
	cfg.ConfigSets[0].TargetURL = target
	cfg.Plugins = map[string]bool{plugins.NameMock: true, plugins.NameLogger: false}
	return cfg
}

func startServer(t *testing.T, cfg *config.ProxyConfig, path string) *Server {
	t.Helper()
	s, err := New(Options{Config: cfg, ConfigPath: path, Addr: "127.0.0.1:0", Version: "test"})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp
}

func TestServer_ForwardsToActiveSet(t *testing.T) {
	up := newUpstream(t, "one")
	cfg := testConfig(t, up.URL)
	cfg.ConfigSets[0].RequestHeaders = map[string]string{"X-Env": "dev"}
	s := startServer(t, cfg, "")

	resp, body := get(t, "http://"+s.Addr()+"/hello")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "one /hello dev", body)
}

func TestServer_SwitchConfigSet(t *testing.T) {
	one := newUpstream(t, "one")
	two := newUpstream(t, "two")
	cfg := testConfig(t, one.URL)
	cfg.ConfigSets = append(cfg.ConfigSets, config.ConfigSet{ID: "staging", TargetURL: two.URL})
	path := filepath.Join(t.TempDir(), "proxy.json")
	s := startServer(t, cfg, path)
	base := "http://" + s.Addr()

	resp := do(t, http.MethodPut, base+"/__api/config-sets/active", `{"id": "staging"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body := get(t, base+"/x")
	assert.Equal(t, "two /x ", body)

	saved, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", saved.ActiveConfigSet)
}

func TestServer_ActiveRulesApplyWithoutRestart(t *testing.T) {
	up := newUpstream(t, "one")
	s := startServer(t, testConfig(t, up.URL), "")
	base := "http://" + s.Addr()

	resp := do(t, http.MethodPut, base+"/__api/rules/active",
		`{"rules": [{"method": "GET", "url": "/mocked", "action": "RET_REC", "fallback_fallback": "200"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := get(t, base+"/mocked")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, plugins.MockSourceFallback, resp.Header.Get(plugins.HeaderMockSource))
	assert.Empty(t, body)

	_, body = get(t, base+"/other")
	assert.Equal(t, "one /other ", body)
}

func TestServer_RulesFileHotReload(t *testing.T) {
	up := newUpstream(t, "one")
	cfg := testConfig(t, up.URL)
	s := startServer(t, cfg, "")
	base := "http://" + s.Addr()

	doc := `{"rules": [], "fallback": "RET_REC", "fallback_fallback": "500"}`
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RulesDir, "active.json"), []byte(doc), 0o644))

	require.Eventually(t, func() bool {
		resp, _ := get(t, base+"/anything")
		return resp.StatusCode == http.StatusInternalServerError
	}, 3*time.Second, 50*time.Millisecond)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	up := newUpstream(t, "one")
	s := startServer(t, testConfig(t, up.URL), "")
	base := "http://" + s.Addr()

	get(t, base+"/counted")
	resp, body := get(t, base+"/__api/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `interceptd_requests_total{method="GET",outcome="forward",status="200"} 1`)
	assert.Contains(t, body, "interceptd_websocket_connections 0")
}

func TestServer_StartTwice(t *testing.T) {
	up := newUpstream(t, "one")
	s := startServer(t, testConfig(t, up.URL), "")
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)
}

func TestServer_StopIsIdempotent(t *testing.T) {
	up := newUpstream(t, "one")
	s, err := New(Options{Config: testConfig(t, up.URL), Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	assert.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Start())
	addr := s.Addr()
	require.NoError(t, s.Stop(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))

	_, err = http.Get("http://" + addr + "/")
	assert.Error(t, err)
}

func TestServer_StopClosesWebSocketsAndRejectsUpgrades(t *testing.T) {
	upgrader := gorilla.Upgrader{}
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			typ, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(up.Close)

	s := startServer(t, testConfig(t, up.URL), "")
	client, resp, err := gorilla.DefaultDialer.Dial("ws://"+s.Addr()+"/echo", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer client.Close()

	require.NoError(t, client.WriteMessage(gorilla.TextMessage, []byte("ping")))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(data))

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = client.ReadMessage()
	var ce *gorilla.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, gorilla.CloseNormalClosure, ce.Code)
	assert.Zero(t, s.Bridge().Connections().Len())

	late := httptest.NewServer(s.Handler())
	defer late.Close()
	_, resp, err = gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(late.URL, "http")+"/echo", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ProxyPort = -1
	_, err := New(Options{Config: cfg})
	assert.Error(t, err)
}

func TestStateTargets(t *testing.T) {
	cfg := config.Default()
	cfg.ConfigSets[0].RequestHeaders = map[string]string{"A": "1"}
	targets := stateTargets{state: config.NewState(cfg, "")}

	target, err := targets.Target()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigSetID, target.ID)
	assert.Equal(t, config.DefaultTargetURL, target.URL.String())
	assert.Equal(t, "1", target.Headers["A"])

	target.Headers["A"] = "changed"
	set, _ := cfg.ActiveSet()
	assert.Equal(t, "1", set.RequestHeaders["A"])
}
