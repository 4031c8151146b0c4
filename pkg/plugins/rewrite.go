package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/getmockd/interceptd/internal/matching"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/plugin"
)

type rewriteConfig struct {
	Match           string            `json:"match"`
	RequestHeaders  map[string]string `json:"requestHeaders"`
	Status          int               `json:"status"`
	ResponseHeaders map[string]string `json:"responseHeaders"`
	// Set maps JSONPath expressions to values assigned in JSON response bodies.
	Set map[string]any `json:"set"`
}

type assignment struct {
	path  jp.Expr
	value any
}

type rewrite struct {
	log *slog.Logger
}

// NewRewrite returns the rewrite plugin registration. Header values may
// reference ":name" segments of the match pattern as {{name}}.
func NewRewrite(log *slog.Logger) plugin.Registration {
	return plugin.Registration{
		Name:        NameRewrite,
		Description: "Rewrite request headers and upstream responses",
		Options: map[string]plugin.Option{
			"match":           {Type: "text", Default: "", Label: "Match", Description: "URL pattern (empty matches everything)"},
			"requestHeaders":  {Type: "object", Default: map[string]any{}, Label: "Request Headers", Description: "Headers added to the forwarded request"},
			"status":          {Type: "number", Default: 0, Label: "Status", Description: "Replacement response status (0 keeps upstream)"},
			"responseHeaders": {Type: "object", Default: map[string]any{}, Label: "Response Headers", Description: "Headers set on the response"},
			"set":             {Type: "object", Default: map[string]any{}, Label: "Set", Description: "JSONPath assignments applied to JSON response bodies"},
		},
		Handler: &rewrite{log: logging.OrNop(log)},
	}
}

func (p *rewrite) OnRequest(_ context.Context, rc *plugin.RequestContext) (*plugin.Result, error) {
	var cfg rewriteConfig
	if err := rc.Config.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid rewrite config: %w", err)
	}
	path := rc.Request.URL.Path
	if !matching.MatchURL(cfg.Match, path) {
		return nil, nil
	}
	params := matching.PathParams(cfg.Match, path)

	assignments, err := compileAssignments(cfg.Set)
	if err != nil {
		return nil, err
	}

	res := &plugin.Result{}
	if len(cfg.RequestHeaders) > 0 {
		res.ModifyRequest = &plugin.RequestPatch{Headers: expandHeaders(cfg.RequestHeaders, params)}
	}
	if cfg.Status == 0 && len(cfg.ResponseHeaders) == 0 && len(assignments) == 0 {
		return res, nil
	}

	respHeaders := expandHeaders(cfg.ResponseHeaders, params)
	res.ModifyResponse = func(meta *plugin.ResponseMeta, body []byte) (*plugin.ResponsePatch, error) {
		patch := &plugin.ResponsePatch{StatusCode: cfg.Status, Headers: respHeaders}
		if len(assignments) == 0 || len(body) == 0 {
			return patch, nil
		}
		doc, err := oj.Parse(body)
		if err != nil {
			p.log.Debug("response body is not JSON, skipping set", "path", path)
			return patch, nil
		}
		for _, a := range assignments {
			if err := a.path.Set(doc, a.value); err != nil {
				return nil, fmt.Errorf("set %s: %w", a.path, err)
			}
		}
		patch.Body = []byte(oj.JSON(doc))
		return patch, nil
	}
	return res, nil
}

func compileAssignments(set map[string]any) ([]assignment, error) {
	keys := slices.Sorted(maps.Keys(set))
	out := make([]assignment, 0, len(keys))
	for _, k := range keys {
		x, err := jp.ParseString(k)
		if err != nil {
			return nil, fmt.Errorf("invalid JSONPath %q: %w", k, err)
		}
		out = append(out, assignment{path: x, value: set[k]})
	}
	return out, nil
}

func expandHeaders(headers map[string]string, params map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		for name, val := range params {
			v = strings.ReplaceAll(v, "{{"+name+"}}", val)
		}
		out[k] = v
	}
	return out
}
