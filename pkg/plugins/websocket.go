package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getmockd/interceptd/internal/matching"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/plugin"
)

type messageRule struct {
	// When is an expr-lang condition; empty always applies.
	When    string       `json:"when"`
	Block   bool         `json:"block"`
	Replace *replacement `json:"replace,omitempty"`
}

type replacement struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type wsControl struct {
	log *slog.Logger

	programMu    sync.RWMutex
	programCache map[string]*vm.Program
}

// NewWebSocket returns the websocket plugin registration.
func NewWebSocket(log *slog.Logger) plugin.Registration {
	return plugin.Registration{
		Name:        NameWebSocket,
		Description: "Block WebSocket upgrades by path and rewrite or drop messages",
		Options: map[string]plugin.Option{
			"blockPaths": {Type: "array", Default: []any{}, Label: "Block Paths", Description: "Glob patterns of upgrade paths to reject"},
			"rules":      {Type: "array", Default: []any{}, Label: "Message Rules", Description: "Rules {when, block, replace{from,to}} over direction, text, size, binary, connectionId, path"},
		},
		Handler: &wsControl{log: logging.OrNop(log), programCache: make(map[string]*vm.Program)},
	}
}

func (p *wsControl) OnUpgrade(_ context.Context, uc *plugin.UpgradeContext) (*plugin.Result, error) {
	path := uc.Request.URL.Path
	if !matching.MatchAnyGlob(uc.Config.Strings("blockPaths"), path) {
		return nil, nil
	}
	p.log.Info("websocket upgrade blocked", "path", path)
	return &plugin.Result{
		Action:         plugin.ActionBlock,
		Metadata:       map[string]any{"blockedPath": path},
		StopProcessing: true,
	}, nil
}

func (p *wsControl) OnMessage(_ context.Context, mc *plugin.MessageContext) (*plugin.Result, error) {
	var cfg struct {
		Rules []messageRule `json:"rules"`
	}
	if err := mc.Config.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid websocket config: %w", err)
	}
	if len(cfg.Rules) == 0 {
		return nil, nil
	}

	msg := mc.Message
	text := string(msg.Data)
	changed := false
	for i, rule := range cfg.Rules {
		env := map[string]any{
			"direction":    string(msg.Direction),
			"text":         text,
			"size":         len(text),
			"binary":       msg.Binary,
			"connectionId": msg.ConnectionID,
			"path":         msg.Path,
		}
		ok, err := p.eval(rule.When, env)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if !ok {
			continue
		}
		if rule.Block {
			return &plugin.Result{Action: plugin.ActionBlock, Metadata: map[string]any{"blockedByRule": i}}, nil
		}
		if rule.Replace != nil && rule.Replace.From != "" && !msg.Binary {
			next := strings.ReplaceAll(text, rule.Replace.From, rule.Replace.To)
			changed = changed || next != text
			text = next
		}
	}
	if !changed {
		return nil, nil
	}
	return &plugin.Result{ModifiedMessage: []byte(text)}, nil
}

func (p *wsControl) eval(expression string, env map[string]any) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}
	program, err := p.compile(expression, env)
	if err != nil {
		return false, fmt.Errorf("compile %q: %w", expression, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", expression, err)
	}
	b, _ := out.(bool)
	return b, nil
}

func (p *wsControl) compile(expression string, env map[string]any) (*vm.Program, error) {
	p.programMu.RLock()
	if program, ok := p.programCache[expression]; ok {
		p.programMu.RUnlock()
		return program, nil
	}
	p.programMu.RUnlock()

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, err
	}

	p.programMu.Lock()
	if existing, ok := p.programCache[expression]; ok {
		p.programMu.Unlock()
		return existing, nil
	}
	p.programCache[expression] = program
	p.programMu.Unlock()
	return program, nil
}
