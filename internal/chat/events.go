package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Event names shared by both directions of the wire protocol.
const (
	EvSetUsername      = "set username"
	EvLoadHistory      = "load history"
	EvChatMessage      = "chat message"
	EvDeleteMessage    = "delete message"
	EvEditMessage      = "edit message"
	EvEditConfirmed    = "edit message confirmed"
	EvMarkSeen         = "mark seen"
	EvMessageSeen      = "message seen"
	EvTyping           = "typing"
	EvStopTyping       = "stop typing"
	EvImageUpload      = "image upload"
	EvUserDisconnected = "user disconnected"
)

var inboundEvents = map[string]struct{}{
	EvSetUsername:   {},
	EvChatMessage:   {},
	EvDeleteMessage: {},
	EvEditMessage:   {},
	EvMarkSeen:      {},
	EvTyping:        {},
	EvStopTyping:    {},
	EvImageUpload:   {},
}

// KnownEvent reports whether name is an inbound event the routing table
// handles. Callers must not let event names outside this set reach bounded
// contexts such as metric labels; clients control the raw string.
func KnownEvent(name string) bool {
	_, ok := inboundEvents[name]
	return ok
}

// Envelope is the wire frame: an event name plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ID is a message identifier that tolerates clients sending it as either a
// JSON number or a numeric string.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("message id %q: %w", b, ErrBadPayload)
	}
	*id = ID(n)
	return nil
}

type chatPayload struct {
	Text        string `json:"text"`
	ReplyTo     *ID    `json:"replyToId,omitempty"`
	ReplyToText string `json:"replyToText,omitempty"`
}

type editPayload struct {
	ID      ID     `json:"id"`
	NewText string `json:"newText"`
}

type editConfirmed struct {
	ID      int64  `json:"id"`
	NewText string `json:"newText"`
}

type uploadPayload struct {
	FileData string `json:"fileData"`
	FileName string `json:"fileName"`
}

// Scope selects which connections receive an outbound emission.
type Scope int

const (
	// ScopeSender delivers to the originating connection only.
	ScopeSender Scope = iota
	// ScopeAll delivers to every connection, the sender included.
	ScopeAll
	// ScopePeers delivers to every connection except the sender.
	ScopePeers
)

// Outbound is one event the engine wants delivered.
type Outbound struct {
	Scope Scope
	Event string
	Data  any
}

func toSender(event string, data any) []Outbound {
	return []Outbound{{Scope: ScopeSender, Event: event, Data: data}}
}

func toAll(event string, data any) []Outbound {
	return []Outbound{{Scope: ScopeAll, Event: event, Data: data}}
}

func toPeers(event string, data any) []Outbound {
	return []Outbound{{Scope: ScopePeers, Event: event, Data: data}}
}
