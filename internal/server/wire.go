// Package server defines the JSON frames exchanged over a chat connection
// and the defaulting rules applied when decoding them.
package server

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	typeChatMessage   = "chat_message"
	typeSystemMessage = "system_message"

	systemUsername    = "System"
	anonymousUsername = "anonymous"
)

// inboundMessage is the client-to-server frame. Both fields are optional on
// the wire; decoding applies the defaults.
type inboundMessage struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// outboundMessage is the server-to-client frame, covering both chat fan-out
// and system notifications. MessageID and Timestamp are only set on chat
// messages; persisted ids start at 1 so omitempty never hides a real one.
type outboundMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Username  string `json:"username"`
	MessageID int64  `json:"message_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// parseInbound decodes a raw frame and applies the defaulting rules: a
// missing or empty username becomes "anonymous", a missing message becomes
// the empty string. Malformed JSON is an error; the caller decides the drop
// policy.
func parseInbound(raw []byte) (inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return inboundMessage{}, err
	}
	if msg.Username == "" {
		msg.Username = anonymousUsername
	}
	return msg, nil
}

// chatPayload builds the broadcast frame for a persisted message.
func chatPayload(message, username string, messageID int64, timestamp time.Time) ([]byte, error) {
	return json.Marshal(outboundMessage{
		Type:      typeChatMessage,
		Message:   message,
		Username:  username,
		MessageID: messageID,
		Timestamp: timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// welcomePayload builds the system frame sent to a client right after it
// joins a room. Delivered to the joining client only, never broadcast.
func welcomePayload(room string) []byte {
	payload, _ := json.Marshal(outboundMessage{
		Type:     typeSystemMessage,
		Message:  "Connected to room: " + room,
		Username: systemUsername,
	})
	return payload
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
