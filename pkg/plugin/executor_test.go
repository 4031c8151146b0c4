package plugin

import (
	"context"
	"errors"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(r *Result) RequestFunc {
	return func(context.Context, *RequestContext) (*Result, error) { return r, nil }
}

func TestExecutor_RunRequest_Defaults(t *testing.T) {
	e := NewExecutor(NewRegistry(), nil)
	d := e.RunRequest(context.Background(), httptest.NewRequest("GET", "/", nil), nil)

	assert.Equal(t, ActionProxy, d.Action)
	assert.Equal(t, RelayStream, d.RelayMode())
	assert.Empty(t, d.Errors())
	assert.Empty(t, d.StoppedBy())
}

func TestExecutor_RunRequest_MergesInOrder(t *testing.T) {
	r := NewRegistry()
	var seen []string
	record := func(name string, res *Result) RequestFunc {
		return func(_ context.Context, rc *RequestContext) (*Result, error) {
			seen = append(seen, name)
			return res, nil
		}
	}
	r.MustRegister(Registration{Name: "first", Enabled: true, Handler: record("first", &Result{
		ModifyRequest: &RequestPatch{Headers: map[string]string{"X-A": "1"}},
		Metadata:      map[string]any{"a": 1, "shared": "first"},
	})})
	r.MustRegister(Registration{Name: "second", Enabled: true, Handler: record("second", &Result{
		Metadata: map[string]any{"b": 2, "shared": "second"},
	})})
	r.MustRegister(Registration{Name: "disabled", Enabled: false, Handler: record("disabled", &Result{Action: ActionMock})})

	d := NewExecutor(r, nil).RunRequest(context.Background(), httptest.NewRequest("GET", "/", nil), nil)

	assert.Equal(t, []string{"first", "second"}, seen)
	assert.Equal(t, ActionProxy, d.Action)
	require.NotNil(t, d.ModifyRequest)
	assert.Equal(t, "1", d.ModifyRequest.Headers["X-A"])
	assert.Equal(t, 1, d.Metadata["a"])
	assert.Equal(t, 2, d.Metadata["b"])
	assert.Equal(t, "second", d.Metadata["shared"])
}

func TestExecutor_RunRequest_StopProcessing(t *testing.T) {
	r := NewRegistry()
	called := false
	r.MustRegister(Registration{Name: "mock", Enabled: true, Handler: result(&Result{
		Action:         ActionMock,
		Mock:           &MockResponse{StatusCode: 200, Body: []byte("hi")},
		StopProcessing: true,
	})})
	r.MustRegister(Registration{Name: "after", Enabled: true, Handler: RequestFunc(func(context.Context, *RequestContext) (*Result, error) {
		called = true
		return nil, nil
	})})

	d := NewExecutor(r, nil).RunRequest(context.Background(), httptest.NewRequest("GET", "/", nil), nil)

	assert.False(t, called)
	assert.Equal(t, ActionMock, d.Action)
	assert.Equal(t, "mock", d.StoppedBy())
	assert.True(t, d.StopProcessing)
}

func TestExecutor_RunRequest_ErrorsAreIsolated(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Registration{Name: "broken", Enabled: true, Handler: RequestFunc(func(context.Context, *RequestContext) (*Result, error) {
		return nil, errors.New("boom")
	})})
	r.MustRegister(Registration{Name: "panics", Enabled: true, Handler: RequestFunc(func(context.Context, *RequestContext) (*Result, error) {
		panic("kaboom")
	})})
	r.MustRegister(Registration{Name: "ok", Enabled: true, Handler: result(&Result{Metadata: map[string]any{"ok": true}})})

	d := NewExecutor(r, nil).RunRequest(context.Background(), httptest.NewRequest("GET", "/", nil), nil)

	errs := d.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, "broken", errs[0].Plugin)
	assert.Equal(t, "boom", errs[0].Message)
	assert.Equal(t, "panics", errs[1].Plugin)
	assert.Contains(t, errs[1].Message, "kaboom")
	assert.Equal(t, true, d.Metadata["ok"])
}

func TestExecutor_HandlerSeesSnapshot(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Registration{Name: "a", Enabled: true, Handler: result(&Result{Metadata: map[string]any{"k": "v"}})})
	r.MustRegister(Registration{Name: "b", Enabled: true, Handler: RequestFunc(func(_ context.Context, rc *RequestContext) (*Result, error) {
		assert.Equal(t, "v", rc.Decision.Metadata["k"])
		rc.Decision.Metadata["k"] = "tampered"
		assert.Equal(t, "yes", rc.Config.String("flag", ""))
		return nil, nil
	})})
	require.NoError(t, r.SetConfig("b", Config{"flag": "yes"}))

	d := NewExecutor(r, nil).RunRequest(context.Background(), httptest.NewRequest("GET", "/", nil), nil)
	assert.Equal(t, "v", d.Metadata["k"])
}

func TestExecutor_ModifyResponseSelectsBufferMode(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Registration{Name: "rw", Enabled: true, Handler: result(&Result{
		ModifyResponse: func(*ResponseMeta, []byte) (*ResponsePatch, error) { return nil, nil },
	})})

	d := NewExecutor(r, nil).RunRequest(context.Background(), httptest.NewRequest("GET", "/", nil), nil)
	assert.Equal(t, RelayBuffer, d.RelayMode())
}

func TestExecutor_RunUpgrade(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Registration{Name: "gate", Enabled: true, Handler: UpgradeFunc(func(_ context.Context, uc *UpgradeContext) (*Result, error) {
		if uc.Request.URL.Path == "/blocked" {
			return &Result{Action: ActionBlock, StopProcessing: true}, nil
		}
		return nil, nil
	})})
	// Request-only plugins do not participate in the upgrade stage.
	r.MustRegister(Registration{Name: "req", Enabled: true, Handler: result(&Result{Action: ActionMock})})

	e := NewExecutor(r, nil)
	d := e.RunUpgrade(context.Background(), httptest.NewRequest("GET", "/ok", nil))
	assert.Equal(t, ActionProxy, d.Action)

	d = e.RunUpgrade(context.Background(), httptest.NewRequest("GET", "/blocked", nil))
	assert.Equal(t, ActionBlock, d.Action)
	assert.Equal(t, "gate", d.StoppedBy())
}

func TestExecutor_RunMessage(t *testing.T) {
	upper := MessageFunc(func(_ context.Context, mc *MessageContext) (*Result, error) {
		return &Result{ModifiedMessage: append(mc.Message.Data, '!')}, nil
	})
	blockSecret := MessageFunc(func(_ context.Context, mc *MessageContext) (*Result, error) {
		if string(mc.Message.Data) == "secret!" {
			return &Result{Action: ActionBlock}, nil
		}
		return nil, nil
	})
	var after []string
	tail := MessageFunc(func(_ context.Context, mc *MessageContext) (*Result, error) {
		after = append(after, string(mc.Message.Data))
		return nil, nil
	})

	r := NewRegistry()
	r.MustRegister(Registration{Name: "bang", Enabled: true, Handler: upper})
	r.MustRegister(Registration{Name: "guard", Enabled: true, Handler: blockSecret})
	r.MustRegister(Registration{Name: "tail", Enabled: true, Handler: tail})
	e := NewExecutor(r, nil)

	d := e.RunMessage(context.Background(), Message{ConnectionID: "ws-1", Direction: DirectionClientToServer, Data: []byte("hello")})
	assert.Equal(t, ActionForward, d.Action)
	assert.Equal(t, "hello!", string(d.ModifiedMessage))

	d = e.RunMessage(context.Background(), Message{Data: []byte("secret")})
	assert.Equal(t, ActionBlock, d.Action)
	assert.Equal(t, "guard", d.Metadata[MetaBlockedBy])
	assert.Equal(t, []string{"hello!"}, after)
}

func TestExecutor_RunMessage_PassThroughWithoutPlugins(t *testing.T) {
	d := NewExecutor(NewRegistry(), nil).RunMessage(context.Background(), Message{Data: []byte("x")})
	assert.Equal(t, ActionForward, d.Action)
	assert.Equal(t, []byte("x"), d.ModifiedMessage)
}

func TestExecutor_RegistryChangesDoNotAffectRunningPipeline(t *testing.T) {
	r := NewRegistry()
	var seen []string
	var thirdSaw []string
	started := make(chan struct{})
	release := make(chan struct{})

	r.MustRegister(Registration{Name: "first", Enabled: true, Handler: RequestFunc(func(context.Context, *RequestContext) (*Result, error) {
		seen = append(seen, "first")
		if started != nil {
			close(started)
			started = nil
			<-release
		}
		return nil, nil
	})})
	r.MustRegister(Registration{Name: "second", Enabled: true, Handler: RequestFunc(func(context.Context, *RequestContext) (*Result, error) {
		seen = append(seen, "second")
		return nil, nil
	})})
	r.MustRegister(Registration{Name: "third", Enabled: true, Handler: RequestFunc(func(_ context.Context, rc *RequestContext) (*Result, error) {
		seen = append(seen, "third")
		thirdSaw = append(thirdSaw, rc.Config.String("v", ""))
		return nil, nil
	})})
	require.NoError(t, r.SetConfig("third", Config{"v": "old"}))

	e := NewExecutor(r, nil)
	wait := started
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.RunRequest(context.Background(), httptest.NewRequest("GET", "/", nil), nil)
	}()

	<-wait
	r.SetOrder([]string{"third", "second", "first"})
	require.NoError(t, r.SetEnabled("second", false))
	require.NoError(t, r.SetConfig("third", Config{"v": "new"}))
	close(release)
	<-done

	assert.Equal(t, []string{"first", "second", "third"}, seen)
	assert.Equal(t, []string{"old"}, thirdSaw)

	seen = nil
	e.RunRequest(context.Background(), httptest.NewRequest("GET", "/", nil), nil)
	assert.Equal(t, []string{"third", "first"}, seen)
	assert.Equal(t, []string{"old", "new"}, thirdSaw)
}

func TestExecutor_ExecutionFollowsEffectiveOrder(t *testing.T) {
	all := []string{"a", "b", "c", "d"}
	r := NewRegistry()
	var seen []string
	for _, name := range all {
		r.MustRegister(Registration{Name: name, Enabled: true, Handler: RequestFunc(func(context.Context, *RequestContext) (*Result, error) {
			seen = append(seen, name)
			return nil, nil
		})})
	}
	e := NewExecutor(r, nil)

	for _, order := range orderings(all) {
		r.SetOrder(order)
		seen = nil
		e.RunRequest(context.Background(), httptest.NewRequest("GET", "/", nil), nil)

		want := append([]string(nil), order...)
		for _, name := range all {
			if !slices.Contains(order, name) {
				want = append(want, name)
			}
		}
		assert.Equal(t, want, seen, "order %v", order)
	}
}

// orderings returns every ordered selection of names, including the empty one.
func orderings(names []string) [][]string {
	out := [][]string{{}}
	var walk func(prefix []string)
	walk = func(prefix []string) {
		for _, n := range names {
			if slices.Contains(prefix, n) {
				continue
			}
			next := append(slices.Clone(prefix), n)
			out = append(out, next)
			walk(next)
		}
	}
	walk(nil)
	return out
}
