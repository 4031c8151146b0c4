package plugin

import (
	"context"
	"net/http"
)

// Direction identifies which peer sent a WebSocket message.
type Direction string

const (
	DirectionClientToServer Direction = "client-to-server"
	DirectionServerToClient Direction = "server-to-client"
)

// RequestContext is handed to RequestHandler implementations.
type RequestContext struct {
	Request *http.Request
	// Body is the fully buffered client request body.
	Body   []byte
	Config Config
	// Decision is a snapshot of the decision merged so far.
	Decision Decision
}

// UpgradeContext is handed to UpgradeHandler implementations.
type UpgradeContext struct {
	Request  *http.Request
	Config   Config
	Decision Decision
}

// Message is a single relayed WebSocket frame.
type Message struct {
	ConnectionID string
	Path         string
	Direction    Direction
	Binary       bool
	Data         []byte
}

// MessageContext is handed to MessageHandler implementations. Message.Data
// holds the payload as modified by earlier plugins.
type MessageContext struct {
	Message  Message
	Config   Config
	Decision Decision
}

// RequestHandler participates in the request stage.
type RequestHandler interface {
	OnRequest(ctx context.Context, rc *RequestContext) (*Result, error)
}

// UpgradeHandler participates in the upgrade stage.
type UpgradeHandler interface {
	OnUpgrade(ctx context.Context, uc *UpgradeContext) (*Result, error)
}

// MessageHandler participates in the message stage.
type MessageHandler interface {
	OnMessage(ctx context.Context, mc *MessageContext) (*Result, error)
}

// RequestFunc adapts a function to RequestHandler.
type RequestFunc func(ctx context.Context, rc *RequestContext) (*Result, error)

func (f RequestFunc) OnRequest(ctx context.Context, rc *RequestContext) (*Result, error) {
	return f(ctx, rc)
}

// UpgradeFunc adapts a function to UpgradeHandler.
type UpgradeFunc func(ctx context.Context, uc *UpgradeContext) (*Result, error)

func (f UpgradeFunc) OnUpgrade(ctx context.Context, uc *UpgradeContext) (*Result, error) {
	return f(ctx, uc)
}

// MessageFunc adapts a function to MessageHandler.
type MessageFunc func(ctx context.Context, mc *MessageContext) (*Result, error)

func (f MessageFunc) OnMessage(ctx context.Context, mc *MessageContext) (*Result, error) {
	return f(ctx, mc)
}

func handles(h any, stage Stage) bool {
	switch stage {
	case StageRequest:
		_, ok := h.(RequestHandler)
		return ok
	case StageUpgrade:
		_, ok := h.(UpgradeHandler)
		return ok
	case StageMessage:
		_, ok := h.(MessageHandler)
		return ok
	}
	return false
}
