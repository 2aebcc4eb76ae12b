// Package server carries the shared frame and event types passed between the
// client pumps and the hub loop.
package server

import (
	"encoding/json"
	"strings"
)

// inboundEvent is one decoded client frame waiting for the hub loop.
type inboundEvent struct {
	client *Client
	name   string
	data   json.RawMessage
}

// uploadResult re-enters the hub loop when an image disk write finishes.
type uploadResult struct {
	author string
	url    string
	err    error
}

// outboundFrame is the JSON envelope written back to clients.
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
