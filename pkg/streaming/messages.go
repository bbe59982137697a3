// Package streaming defines the messages exchanged with an external
// renderer over the scene link.
package streaming

import (
	"encoding/json"

	"github.com/arpoise/arclient/pkg/core"
)

// Message type constants of the scene link protocol.
const (
	TypeHello         = "hello"
	TypeEvent         = "event"
	TypeSnapshot      = "snapshot"
	TypeCommand       = "command"
	TypeCommandResult = "command_result"
	TypeAck           = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the renderer's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload identifies the client. It is the first message on every
// connection.
type HelloPayload struct {
	DeviceID string `json:"deviceId"`
	Variant  string `json:"variant"`
	Platform string `json:"platform"`
	Build    string `json:"build"`
}

// SnapshotPayload lists the placed objects after a cycle.
type SnapshotPayload struct {
	Cycle   int64           `json:"cycle"`
	Layer   string          `json:"layer"`
	Objects []ObjectPayload `json:"objects"`
}

// ObjectPayload is one placed object and its nested objects.
type ObjectPayload struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title,omitempty"`
	Template  string          `json:"template"`
	BaseURL   string          `json:"baseUrl,omitempty"`
	Lat       float64         `json:"lat"`
	Lon       float64         `json:"lon"`
	Relative  bool            `json:"relative"`
	Target    core.Vec3       `json:"target"`
	Bleaching int             `json:"bleaching"`
	Children  []ObjectPayload `json:"children,omitempty"`
}

// CommandPayload is a collaborator command sent by the renderer, in the
// same line syntax as stdin commands.
type CommandPayload struct {
	ID   string `json:"id"`
	Line string `json:"line"`
}

// CommandResultPayload answers a CommandPayload.
type CommandResultPayload struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
