// Package operator is the Operator Session Layer (spec component E): an
// authenticated WebSocket action/event protocol in front of Component B
// (sessions/capabilities) and Component C (object store), broadcasting
// state changes to every connected operator via a stable per-client
// integer handle.
package operator

import "encoding/json"

// Action is an inbound operator request. MsgID correlates it with the
// Reply the server eventually sends back.
type Action struct {
	MsgID string          `json:"msg_id,omitempty"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Reply is an outbound message: either a direct response to an Action
// (MsgID set, echoing the request) or a server-pushed broadcast (MsgID
// empty).
type Reply struct {
	MsgID     string      `json:"msg_id,omitempty"`
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
}

// objectPayload is the request body shared by FetchObject/SaveObject/
// DeleteObject.
type objectPayload struct {
	ID       int64           `json:"id,omitempty"`
	Type     int             `json:"type,omitempty"`
	Name     string          `json:"name,omitempty"`
	Category string          `json:"category,omitempty"`
	Comment  string          `json:"comment,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
	Version  int             `json:"version,omitempty"`
}
