package config

import (
	"encoding/json"
	"fmt"

	"github.com/rockerboo/lsp-proxy/internal/state"
	"github.com/rockerboo/lsp-proxy/internal/transport"
)

// BuildServerStates turns each ServerConfig into a ServerState wired to
// the transport its "transport" field names. Connect is not called here:
// the caller drives it so it can bound it with a context and decide how
// to react to a failed server without the config package needing to know
// about Dispatcher concerns.
func BuildServerStates(cfg *Config) ([]*state.ServerState, error) {
	states := make([]*state.ServerState, 0, len(cfg.Servers))

	for _, sc := range cfg.Servers {
		t, err := buildTransport(sc)
		if err != nil {
			return nil, fmt.Errorf("config: server %q: %w", sc.Name, err)
		}

		s := state.NewServerState(sc.Name, sc.Primary, t)
		s.UseDiagnostics = sc.UseDiagnostics
		s.UseFormatting = sc.UseFormatting
		s.UseCompletion = sc.UseCompletion
		s.UseSignature = sc.UseSignature
		s.UseExecuteCommand = sc.UseExecuteCommand

		if sc.InitializationOptions != nil {
			b, err := json.Marshal(sc.InitializationOptions)
			if err != nil {
				return nil, fmt.Errorf("config: server %q: initialization_options: %w", sc.Name, err)
			}
			raw := json.RawMessage(b)
			s.InitializationOptions = &raw
		}

		states = append(states, s)
	}

	return states, nil
}

func buildTransport(sc ServerConfig) (transport.Transport, error) {
	switch sc.Transport {
	case "", "stdio":
		if sc.Command == "" {
			return nil, fmt.Errorf("stdio transport requires \"command\"")
		}
		return transport.NewStdioTransport(sc.Command, sc.Args), nil
	case "tcp":
		if sc.Port == 0 {
			return nil, fmt.Errorf("tcp transport requires \"port\"")
		}
		return transport.NewTCPTransport(sc.Host, sc.Port), nil
	case "websocket":
		url := sc.URL
		if url == "" {
			host := sc.Host
			if host == "" {
				host = "127.0.0.1"
			}
			url = fmt.Sprintf("ws://%s:%d", host, sc.Port)
		}
		return transport.NewWebSocketTransport(url), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", sc.Transport)
	}
}
