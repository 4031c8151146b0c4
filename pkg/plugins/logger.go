package plugins

import (
	"context"
	"log/slog"
	"time"

	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/plugin"
	"github.com/getmockd/interceptd/pkg/util"
)

type requestLogger struct {
	log *slog.Logger
	now func() time.Time
}

// NewLogger returns the logger plugin registration.
func NewLogger(log *slog.Logger) plugin.Registration {
	return plugin.Registration{
		Name:        NameLogger,
		Description: "Log request details",
		Enabled:     true,
		Options: map[string]plugin.Option{
			"logBody":    {Type: "boolean", Default: true, Label: "Log Request Body", Description: "Include a request body preview in logs"},
			"logHeaders": {Type: "boolean", Default: false, Label: "Log Headers", Description: "Include request headers in logs"},
		},
		Handler: &requestLogger{log: logging.OrNop(log), now: time.Now},
	}
}

func (l *requestLogger) OnRequest(ctx context.Context, rc *plugin.RequestContext) (*plugin.Result, error) {
	ts := l.now().UTC().Format(time.RFC3339Nano)
	r := rc.Request

	attrs := []any{"method", r.Method, "url", r.URL.RequestURI(), "bodyBytes", len(rc.Body)}
	if rc.Config.Bool("logBody", true) && len(rc.Body) > 0 {
		attrs = append(attrs, "body", util.TruncateBody(string(rc.Body), 0))
	}
	if rc.Config.Bool("logHeaders", false) {
		attrs = append(attrs, "headers", r.Header)
	}
	l.log.InfoContext(ctx, "request", attrs...)

	return &plugin.Result{Metadata: map[string]any{"logged": true, "timestamp": ts}}, nil
}
