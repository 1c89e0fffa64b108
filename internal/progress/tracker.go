// Package progress tracks $/progress notifications flowing from any
// downstream server to the client, so ambient tooling can report what's
// currently running without re-parsing the wire. Every event is keyed
// by (server name, token), since each downstream server owns its own
// token namespace.
package progress

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/myleshyson/lsprotocol-go/protocol"
)

// Event is a normalized view of a $/progress payload.
type Event struct {
	Server      string
	TokenKey    string
	Kind        string // begin|report|end|unknown
	Title       string
	Message     string
	Percentage  *uint32
	Cancellable *bool
	Time        time.Time
	Raw         json.RawMessage
}

// Snapshot is returned to status tooling.
type Snapshot struct {
	Active        []Event
	LastEvent     *Event
	LastEventTime time.Time
}

type key struct {
	server string
	token  string
}

// Tracker tracks server-initiated workDone progress streams across every
// downstream server. Safe for concurrent use: Update and Forget are
// called from the Dispatcher's single processing goroutine, and Snapshot
// may be called from any other goroutine.
type Tracker struct {
	mu     sync.RWMutex
	active map[key]Event
	last   *Event
}

func NewTracker() *Tracker {
	return &Tracker{active: make(map[key]Event)}
}

func tokenKey(t protocol.ProgressToken) string {
	switch v := t.Value.(type) {
	case int32:
		return fmt.Sprintf("%d", v)
	case string:
		return v
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// RegisterToken is called when a server creates a token via
// window/workDoneProgress/create, ahead of any begin/report/end. It
// stores nothing and only returns the token's string key for logging;
// existence in Active is driven solely by begin/report/end.
func (t *Tracker) RegisterToken(server string, token protocol.ProgressToken) string {
	return tokenKey(token)
}

// Update records one $/progress notification's payload for the given
// server.
func (t *Tracker) Update(server string, params protocol.ProgressParams) {
	now := time.Now()
	k := key{server: server, token: tokenKey(params.Token)}

	raw, err := json.Marshal(params.Value)
	if err != nil {
		ev := Event{Server: server, TokenKey: k.token, Kind: "unknown", Time: now}
		t.mu.Lock()
		t.last = &ev
		t.mu.Unlock()
		return
	}

	var base struct {
		Kind        string  `json:"kind"`
		Title       string  `json:"title,omitempty"`
		Message     string  `json:"message,omitempty"`
		Percentage  *uint32 `json:"percentage,omitempty"`
		Cancellable *bool   `json:"cancellable,omitempty"`
	}
	_ = json.Unmarshal(raw, &base)

	ev := Event{
		Server:      server,
		TokenKey:    k.token,
		Kind:        base.Kind,
		Title:       base.Title,
		Message:     base.Message,
		Percentage:  base.Percentage,
		Cancellable: base.Cancellable,
		Time:        now,
		Raw:         raw,
	}
	if ev.Kind == "" {
		ev.Kind = "unknown"
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = &ev

	switch ev.Kind {
	case "begin", "report":
		t.active[k] = ev
	case "end":
		delete(t.active, k)
	default:
		if _, ok := t.active[k]; ok {
			t.active[k] = ev
		}
	}
}

// Forget drops every active entry belonging to server, called when that
// server disconnects so a stale "in progress" entry doesn't linger
// forever in status output.
func (t *Tracker) Forget(server string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.active {
		if k.server == server {
			delete(t.active, k)
		}
	}
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	active := make([]Event, 0, len(t.active))
	for _, ev := range t.active {
		active = append(active, ev)
	}

	var lastCopy *Event
	var lastTime time.Time
	if t.last != nil {
		tmp := *t.last
		lastCopy = &tmp
		lastTime = tmp.Time
	}

	return Snapshot{Active: active, LastEvent: lastCopy, LastEventTime: lastTime}
}
