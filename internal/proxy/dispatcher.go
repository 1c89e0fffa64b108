// Package proxy implements the Dispatcher: the event loop that owns one
// read task per stream (the client plus every configured server), waits
// for whichever completes first, and feeds the decoded message to the
// Router. One goroutine per pending read feeds a channel that the
// Dispatcher's single consuming goroutine selects on, so message
// processing stays serialized even though the reads themselves run
// concurrently.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/myleshyson/lsprotocol-go/protocol"

	"github.com/rockerboo/lsp-proxy/internal/logger"
	"github.com/rockerboo/lsp-proxy/internal/progress"
	"github.com/rockerboo/lsp-proxy/internal/router"
	"github.com/rockerboo/lsp-proxy/internal/state"
	"github.com/rockerboo/lsp-proxy/internal/wire"
)

// source identifies which stream a readResult came from. A nil server
// means the client stream.
type source struct {
	server *state.ServerState
}

type readResult struct {
	src source
	msg *wire.Message
	err error
}

// Dispatcher owns the Router, the server list, and the client-facing
// framer, and drives the single-threaded read/process loop. Everything
// it touches is mutated only from Run's goroutine.
type Dispatcher struct {
	Router       *router.Router
	Servers      []*state.ServerState
	ClientFramer *wire.Framer
	Progress     *progress.Tracker

	unhandled *router.UnhandledLogger
}

// NewDispatcher wires a Router (sharing the same servers/global state)
// to the given client framer and server list, along with a progress
// tracker and rate-limited unhandled-notification logger.
func NewDispatcher(clientFramer *wire.Framer, servers []*state.ServerState, global *state.GlobalState) *Dispatcher {
	r := &router.Router{
		Servers:      servers,
		Global:       global,
		ClientFramer: clientFramer,
	}
	d := &Dispatcher{
		Router:       r,
		Servers:      servers,
		ClientFramer: clientFramer,
		Progress:     progress.NewTracker(),
		unhandled:    router.NewUnhandledLogger(),
	}
	r.OnUnhandled = d.logUnhandled
	r.OnForward = d.observeForward
	return d
}

func (d *Dispatcher) logUnhandled(direction, method, server string, params *json.RawMessage) {
	d.unhandled.Log(direction, method, server, params)
}

// observeForward feeds $/progress notifications and
// window/workDoneProgress/create requests to the progress tracker. This
// never influences what the Router sends (§4.5): it only observes
// traffic that already went out.
func (d *Dispatcher) observeForward(_ string, s *state.ServerState, msg *wire.Message) {
	if s == nil || msg.Params == nil {
		return
	}

	switch msg.Method {
	case "$/progress":
		var params protocol.ProgressParams
		if err := json.Unmarshal(*msg.Params, &params); err == nil {
			d.Progress.Update(s.Name, params)
		}
	case "window/workDoneProgress/create":
		var params protocol.WorkDoneProgressCreateParams
		if err := json.Unmarshal(*msg.Params, &params); err == nil {
			d.Progress.RegisterToken(s.Name, params.Token)
		}
	}
}

// Run starts one read task per connected server plus the client, and
// loops until every server has disconnected or ctx is cancelled. It
// never returns nil except by exhausting all servers; a cancelled ctx
// returns ctx.Err() after best-effort termination of every transport.
func (d *Dispatcher) Run(ctx context.Context) error {
	results := make(chan readResult)

	d.spawnClientRead(results)
	for _, s := range d.Servers {
		if s.Connected() {
			d.spawnServerRead(s, results)
		}
	}

	clientLive := true

	for d.anyServerConnected() {
		select {
		case <-ctx.Done():
			d.terminateAll()
			return ctx.Err()
		case res := <-results:
			if res.src.server == nil {
				clientLive = d.handleClientResult(res, results, clientLive)
				continue
			}
			d.handleServerResult(res, results)
		}
	}

	return nil
}

func (d *Dispatcher) spawnClientRead(results chan<- readResult) {
	go func() {
		msg, err := d.ClientFramer.ReadMessage()
		results <- readResult{src: source{}, msg: msg, err: err}
	}()
}

func (d *Dispatcher) spawnServerRead(s *state.ServerState, results chan<- readResult) {
	go func() {
		msg, err := s.Framer.ReadMessage()
		results <- readResult{src: source{server: s}, msg: msg, err: err}
	}()
}

// handleClientResult processes one completed client read. A clean EOF
// means the client went away; per §4.4 that is not itself a termination
// condition (only "zero servers connected" is), so the Dispatcher simply
// stops re-arming the client task and lets the loop continue serving the
// still-running servers until they, too, disconnect or exit/shutdown
// drains them.
func (d *Dispatcher) handleClientResult(res readResult, results chan<- readResult, clientLive bool) bool {
	if res.err != nil {
		if errors.Is(res.err, io.EOF) {
			logger.Infof("proxy: client closed connection")
			return false
		}
		if errors.Is(res.err, wire.ErrHeaderTruncated) {
			logger.Warnf("proxy: client stream ended mid-header")
			return false
		}
		logger.Warnf("proxy: client read error: %v", res.err)
		if clientLive {
			d.spawnClientRead(results)
		}
		return clientLive
	}

	d.Router.DispatchFromClient(res.msg)
	d.spawnClientRead(results)
	return true
}

// handleServerResult processes one completed server read, per §4.4: on
// end-of-stream it awaits the transport's orderly shutdown and leaves
// the server disconnected; on a recoverable per-message decode failure
// it just re-arms the read task; otherwise it hands the message to the
// Router and re-arms.
func (d *Dispatcher) handleServerResult(res readResult, results chan<- readResult) {
	s := res.src.server

	if res.err != nil {
		if errors.Is(res.err, io.EOF) || errors.Is(res.err, wire.ErrHeaderTruncated) {
			if !s.ShutdownReceived {
				logger.Infof("proxy: server %s stream ended", s.Name)
			}
			if err := s.Transport.Wait(); err != nil {
				logger.Warnf("proxy: server %s exited with error: %v", s.Name, err)
			}
			d.Progress.Forget(s.Name)
			return
		}
		logger.Warnf("proxy: server %s read error: %v", s.Name, res.err)
		if s.Connected() {
			d.spawnServerRead(s, results)
		}
		return
	}

	d.Router.DispatchFromServer(s, res.msg)
	if s.Connected() {
		d.spawnServerRead(s, results)
	}
}

func (d *Dispatcher) anyServerConnected() bool {
	for _, s := range d.Servers {
		if s.Connected() {
			return true
		}
	}
	return false
}

// TerminateAll implements the SIGINT/SIGTERM path from §5: every
// transport is told to close, best-effort, with no attempt at a
// graceful LSP shutdown handshake.
func (d *Dispatcher) TerminateAll() {
	d.terminateAll()
}

func (d *Dispatcher) terminateAll() {
	for _, s := range d.Servers {
		if s.Transport == nil {
			continue
		}
		if err := s.Transport.Disconnect(); err != nil {
			logger.Warnf("proxy: disconnect %s: %v", s.Name, err)
		}
	}
}
