package plugins

import (
	"context"
	"log/slog"

	"github.com/getmockd/interceptd/internal/matching"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/plugin"
	"github.com/getmockd/interceptd/pkg/recording"
)

type recorder struct {
	library *recording.Library
	log     *slog.Logger
}

// NewRecorder returns the recorder plugin registration.
func NewRecorder(library *recording.Library, log *slog.Logger) plugin.Registration {
	return plugin.Registration{
		Name:        NameRecorder,
		Description: "Record requests and responses to files",
		Options: map[string]plugin.Option{
			"folder":           {Type: "text", Default: recording.DefaultFolder, Label: "Folder", Description: "Recordings folder to write into"},
			"deleteDuplicates": {Type: "boolean", Default: true, Label: "Delete Duplicates", Description: "Automatically delete duplicate recordings"},
			"maxRecordings":    {Type: "number", Default: -1, Label: "Max Recordings", Description: "Maximum recordings kept per request key (-1 for unlimited)"},
			"exclude":          {Type: "array", Default: []any{}, Label: "Exclude", Description: "Glob patterns of paths that are never recorded"},
		},
		Handler: &recorder{library: library, log: logging.OrNop(log)},
	}
}

func (p *recorder) OnRequest(_ context.Context, rc *plugin.RequestContext) (*plugin.Result, error) {
	if p.library == nil {
		return nil, nil
	}
	r := rc.Request
	if matching.MatchAnyGlob(rc.Config.Strings("exclude"), r.URL.Path) {
		return nil, nil
	}
	store, err := p.library.Folder(rc.Config.String("folder", recording.DefaultFolder))
	if err != nil {
		return nil, err
	}
	opts := recording.Options{
		DeleteDuplicates: rc.Config.Bool("deleteDuplicates", true),
		MaxRecordings:    rc.Config.Int("maxRecordings", -1),
	}
	method, uri, reqBody := r.Method, r.URL.RequestURI(), rc.Body

	return &plugin.Result{
		ModifyResponse: func(meta *plugin.ResponseMeta, body []byte) (*plugin.ResponsePatch, error) {
			sent := reqBody
			if meta.RequestBody != nil {
				sent = meta.RequestBody
			}
			res, err := store.Record(recording.Capture{
				Method:       method,
				URI:          uri,
				RequestBody:  sent,
				StatusCode:   meta.StatusCode,
				ResponseBody: body,
			}, opts)
			if err != nil {
				// Capture failures never reach the client.
				p.log.Warn("failed to record exchange", "method", method, "uri", uri, "error", err)
				return nil, nil
			}
			if res.Duplicate {
				p.log.Debug("duplicate recording skipped", "uri", uri, "kept", res.Path)
			} else {
				p.log.Info("recorded", "method", method, "uri", uri, "file", res.Path)
			}
			return nil, nil
		},
	}, nil
}
