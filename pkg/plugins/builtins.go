package plugins

import (
	"log/slog"

	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/plugin"
	"github.com/getmockd/interceptd/pkg/recording"
)

// Plugin names.
const (
	NameLogger    = "logger"
	NameCORS      = "cors"
	NameBlock5xx  = "block5xx"
	NameMock      = "mock"
	NameRecorder  = "recorder"
	NameRewrite   = "rewrite"
	NameWebSocket = "websocket"
)

// Deps are the collaborators built-in plugins need.
type Deps struct {
	Library *recording.Library
	Logger  *slog.Logger
}

// Builtins returns the registrations of every built-in plugin.
func Builtins(deps Deps) []plugin.Registration {
	log := logging.OrNop(deps.Logger)
	return []plugin.Registration{
		NewLogger(log.With("plugin", NameLogger)),
		NewCORS(),
		NewBlock5xx(),
		NewMock(deps.Library, log.With("plugin", NameMock)),
		NewRecorder(deps.Library, log.With("plugin", NameRecorder)),
		NewRewrite(log.With("plugin", NameRewrite)),
		NewWebSocket(log.With("plugin", NameWebSocket)),
	}
}

// RegisterAll registers every built-in plugin with r.
func RegisterAll(r *plugin.Registry, deps Deps) error {
	for _, reg := range Builtins(deps) {
		if err := r.Register(reg); err != nil {
			return err
		}
	}
	return nil
}
