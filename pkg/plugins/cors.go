package plugins

import (
	"context"

	"github.com/getmockd/interceptd/pkg/plugin"
)

const (
	defaultAllowOrigin  = "*"
	defaultAllowMethods = "GET,POST,PUT,PATCH,DELETE,HEAD,OPTIONS"
	defaultAllowHeaders = "Content-Type, Origin, Accept, Authorization, Content-Length, X-Requested-With"
)

type cors struct{}

// NewCORS returns the cors plugin registration.
func NewCORS() plugin.Registration {
	return plugin.Registration{
		Name:        NameCORS,
		Description: "Add CORS headers to responses",
		Enabled:     true,
		Options: map[string]plugin.Option{
			"allowOrigin":  {Type: "text", Default: defaultAllowOrigin, Label: "Allow Origin", Description: "CORS Allow-Origin header value"},
			"allowMethods": {Type: "text", Default: defaultAllowMethods, Label: "Allow Methods", Description: "CORS Allow-Methods header value"},
		},
		Handler: cors{},
	}
}

func (cors) OnRequest(_ context.Context, rc *plugin.RequestContext) (*plugin.Result, error) {
	defaults := [][2]string{
		{"Access-Control-Allow-Origin", rc.Config.String("allowOrigin", defaultAllowOrigin)},
		{"Access-Control-Allow-Methods", rc.Config.String("allowMethods", defaultAllowMethods)},
		{"Access-Control-Allow-Headers", defaultAllowHeaders},
		{"Access-Control-Allow-Credentials", "true"},
	}
	return &plugin.Result{
		ModifyResponse: func(meta *plugin.ResponseMeta, _ []byte) (*plugin.ResponsePatch, error) {
			headers := make(map[string]string, len(defaults))
			for _, kv := range defaults {
				if meta.Header.Get(kv[0]) == "" {
					headers[kv[0]] = kv[1]
				}
			}
			if len(headers) == 0 {
				return nil, nil
			}
			return &plugin.ResponsePatch{Headers: headers}, nil
		},
	}, nil
}
