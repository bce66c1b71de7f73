// Package hub fans messages out to websocket clients using the channel
// based register/unregister/broadcast pattern.
package hub

// MessageType selects the websocket frame type.
type MessageType int

const (
	JSONMessage MessageType = iota
	BinaryMessage
)

// Message is one broadcast frame.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}
