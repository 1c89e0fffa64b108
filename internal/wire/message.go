// Package wire implements the JSON-RPC 2.0 / Content-Length framing that
// every LSP stream (client or server) speaks, and the thin envelope type
// the router classifies messages through.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/sourcegraph/jsonrpc2"
)

// Kind classifies a decoded message the way the router needs to dispatch
// on it: a request carries an id and expects a response, a notification
// carries no id and expects none, a response carries an id and either a
// result or an error.
type Kind int

const (
	KindRequest Kind = iota
	KindNotification
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Message is the envelope every routing decision is made against. Params,
// Result and Err are left undecoded until a specific rule needs to look
// inside them, matching the "raw bytes + strongly typed view where it
// matters" approach: most messages flow through the proxy without ever
// allocating anything but this header.
type Message struct {
	Kind   Kind
	ID     *jsonrpc2.ID
	Method string
	Params *json.RawMessage
	Result *json.RawMessage
	Err    *jsonrpc2.Error
}

// IsRequest, IsNotification and IsResponse are convenience predicates used
// throughout the router to keep call sites readable.
func (m *Message) IsRequest() bool      { return m.Kind == KindRequest }
func (m *Message) IsNotification() bool { return m.Kind == KindNotification }
func (m *Message) IsResponse() bool     { return m.Kind == KindResponse }

// Clone makes a deep copy so the router can hand each downstream server
// its own mutable copy of a fanned-out client message (e.g. initialize,
// whose params get server-specific rewrites).
func (m *Message) Clone() *Message {
	clone := *m
	if m.ID != nil {
		id := *m.ID
		clone.ID = &id
	}
	if m.Params != nil {
		p := append(json.RawMessage(nil), *m.Params...)
		clone.Params = &p
	}
	if m.Result != nil {
		r := append(json.RawMessage(nil), *m.Result...)
		clone.Result = &r
	}
	if m.Err != nil {
		e := *m.Err
		clone.Err = &e
	}
	return &clone
}

// IDString renders the correlation id for logging. Absent ids render as "-".
func (m *Message) IDString() string {
	if m.ID == nil {
		return "-"
	}
	if m.ID.IsString {
		return m.ID.Str
	}
	return fmt.Sprintf("%d", m.ID.Num)
}

// wireShape is the on-the-wire JSON-RPC 2.0 object shape, decoded so
// presence of each key (including an explicit JSON null) can be
// distinguished from absence: a json.RawMessage field stays nil when its
// key is absent and holds "null" when the key is an explicit null.
type wireShape struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method *string         `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *jsonrpc2.Error `json:"error,omitempty"`
}

// decodeMessage turns a raw JSON-RPC body into a Message, classifying it
// as request/notification/response purely from which fields are present.
func decodeMessage(body []byte) (*Message, error) {
	var ws wireShape
	if err := json.Unmarshal(body, &ws); err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC body: %w", err)
	}

	var id *jsonrpc2.ID
	if ws.ID != nil && string(ws.ID) != "null" {
		var parsed jsonrpc2.ID
		if err := json.Unmarshal(ws.ID, &parsed); err == nil {
			id = &parsed
		}
	}

	msg := &Message{}

	if ws.Method != nil {
		msg.Method = *ws.Method
		if ws.Params != nil {
			msg.Params = &ws.Params
		}
		if id != nil {
			msg.Kind = KindRequest
			msg.ID = id
		} else {
			msg.Kind = KindNotification
		}
		return msg, nil
	}

	msg.Kind = KindResponse
	msg.ID = id
	if ws.Result != nil {
		msg.Result = &ws.Result
	}
	msg.Err = ws.Error
	return msg, nil
}

// encodeMessage renders a Message back to a JSON-RPC 2.0 body. Fields are
// included only where the message kind calls for them, so a notification
// never gets a stray "id" key and a response never gets a "method" key.
func encodeMessage(m *Message) ([]byte, error) {
	out := struct {
		JSONRPC string           `json:"jsonrpc"`
		ID      *jsonrpc2.ID     `json:"id,omitempty"`
		Method  string           `json:"method,omitempty"`
		Params  *json.RawMessage `json:"params,omitempty"`
		Result  *json.RawMessage `json:"result,omitempty"`
		Error   *jsonrpc2.Error  `json:"error,omitempty"`
	}{JSONRPC: "2.0"}

	switch m.Kind {
	case KindRequest:
		out.ID = m.ID
		out.Method = m.Method
		out.Params = m.Params
	case KindNotification:
		out.Method = m.Method
		out.Params = m.Params
	case KindResponse:
		out.ID = m.ID
		out.Result = m.Result
		out.Error = m.Err
	default:
		return nil, fmt.Errorf("wire: cannot encode message with unset kind")
	}

	return json.Marshal(out)
}
