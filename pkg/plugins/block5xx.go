package plugins

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/getmockd/interceptd/pkg/plugin"
)

type block5xx struct{}

// NewBlock5xx returns the block5xx plugin registration.
func NewBlock5xx() plugin.Registration {
	return plugin.Registration{
		Name:        NameBlock5xx,
		Description: "Block 5xx server errors and return a replacement status",
		Options: map[string]plugin.Option{
			"statusCode":      {Type: "number", Default: http.StatusBadGateway, Label: "Replacement Status Code", Description: "Status code to return instead of 5xx"},
			"includeOriginal": {Type: "boolean", Default: true, Label: "Include Original Status", Description: "Include original status in response body"},
		},
		Handler: block5xx{},
	}
}

func (block5xx) OnRequest(_ context.Context, rc *plugin.RequestContext) (*plugin.Result, error) {
	status := rc.Config.Int("statusCode", http.StatusBadGateway)
	includeOriginal := rc.Config.Bool("includeOriginal", true)

	return &plugin.Result{
		ModifyResponse: func(meta *plugin.ResponseMeta, _ []byte) (*plugin.ResponsePatch, error) {
			if meta.StatusCode < 500 || meta.StatusCode > 599 {
				return nil, nil
			}
			body := map[string]any{
				"error":   "Bad Gateway",
				"message": "Request blocked: Server returned 5xx error",
			}
			if includeOriginal {
				body["originalStatus"] = meta.StatusCode
			}
			data, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			return &plugin.ResponsePatch{
				StatusCode: status,
				Headers: map[string]string{
					"Content-Type": "application/json",
					"X-Blocked-By": "block5xx-plugin",
				},
				Body: data,
			}, nil
		},
	}, nil
}
