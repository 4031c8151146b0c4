package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getmockd/interceptd/pkg/logging"
)

// Executor runs the pipeline against a Registry.
type Executor struct {
	registry *Registry
	log      *slog.Logger
}

// NewExecutor creates an executor over registry.
func NewExecutor(registry *Registry, log *slog.Logger) *Executor {
	return &Executor{registry: registry, log: logging.OrNop(log)}
}

// Registry returns the underlying registry.
func (e *Executor) Registry() *Registry { return e.registry }

// RunRequest runs the request stage for an intercepted HTTP request.
func (e *Executor) RunRequest(ctx context.Context, r *http.Request, body []byte) *Decision {
	d := NewDecision(StageRequest)
	e.run(ctx, d, func(ctx context.Context, s step) (*Result, error) {
		return s.handler.(RequestHandler).OnRequest(ctx, &RequestContext{
			Request:  r,
			Body:     body,
			Config:   s.config,
			Decision: d.Clone(),
		})
	})
	return d
}

// RunUpgrade runs the upgrade stage for a WebSocket upgrade request.
func (e *Executor) RunUpgrade(ctx context.Context, r *http.Request) *Decision {
	d := NewDecision(StageUpgrade)
	e.run(ctx, d, func(ctx context.Context, s step) (*Result, error) {
		return s.handler.(UpgradeHandler).OnUpgrade(ctx, &UpgradeContext{
			Request:  r,
			Config:   s.config,
			Decision: d.Clone(),
		})
	})
	return d
}

// RunMessage runs the message stage for one relayed frame. The returned
// decision carries the payload to deliver in ModifiedMessage.
func (e *Executor) RunMessage(ctx context.Context, msg Message) *Decision {
	d := NewDecision(StageMessage)
	d.ModifiedMessage = msg.Data
	e.run(ctx, d, func(ctx context.Context, s step) (*Result, error) {
		m := msg
		m.Data = d.ModifiedMessage
		return s.handler.(MessageHandler).OnMessage(ctx, &MessageContext{
			Message:  m,
			Config:   s.config,
			Decision: d.Clone(),
		})
	})
	return d
}

func (e *Executor) run(ctx context.Context, d *Decision, invoke func(context.Context, step) (*Result, error)) {
	for _, s := range e.registry.snapshot(d.Stage) {
		res, err := e.call(ctx, s, invoke)
		if err != nil {
			perr := newPluginError(s.name, d.Stage, err)
			d.addError(perr)
			e.log.Warn("plugin failed", "plugin", s.name, "stage", d.Stage, "error", err)
			continue
		}
		d.Merge(res)

		if res != nil && res.StopProcessing {
			d.Metadata[MetaStoppedBy] = s.name
			e.log.Debug("pipeline stopped", "plugin", s.name, "stage", d.Stage, "action", d.Action)
			return
		}
		if d.Stage == StageMessage && d.Action == ActionBlock {
			d.Metadata[MetaBlockedBy] = s.name
			return
		}
	}
}

func (e *Executor) call(ctx context.Context, s step, invoke func(context.Context, step) (*Result, error)) (res *Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return invoke(ctx, s)
}
