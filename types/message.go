package types

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies agent-to-agent traffic.
type MessageType string

const (
	MessageRequest      MessageType = "request"
	MessageResponse     MessageType = "response"
	MessageError        MessageType = "error"
	MessageNotification MessageType = "notification"
	MessageBroadcast    MessageType = "broadcast"
)

// AgentMessage is the envelope exchanged between agents on the bus.
// ParentID links a response back to the request that caused it.
type AgentMessage struct {
	ID          string         `json:"id"`
	Type        MessageType    `json:"type"`
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	Action      string         `json:"action,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	ParentID    string         `json:"parent_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewRequest creates a request message addressed to destination.
func NewRequest(source, destination, action string, payload map[string]any) AgentMessage {
	return AgentMessage{
		ID:          uuid.NewString(),
		Type:        MessageRequest,
		Source:      source,
		Destination: destination,
		Action:      action,
		Payload:     payload,
		Timestamp:   time.Now(),
	}
}

// NewBroadcast creates a broadcast message with no fixed destination.
func NewBroadcast(source, action string, payload map[string]any) AgentMessage {
	return AgentMessage{
		ID:        uuid.NewString(),
		Type:      MessageBroadcast,
		Source:    source,
		Action:    action,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Response builds a response correlated to this message via ParentID.
func (m AgentMessage) Response(payload map[string]any) AgentMessage {
	return AgentMessage{
		ID:          uuid.NewString(),
		Type:        MessageResponse,
		Source:      m.Destination,
		Destination: m.Source,
		Action:      m.Action,
		Payload:     payload,
		ParentID:    m.ID,
		Timestamp:   time.Now(),
	}
}

// ErrorResponse builds an error response correlated to this message.
func (m AgentMessage) ErrorResponse(code ErrorCode, msg string) AgentMessage {
	return AgentMessage{
		ID:          uuid.NewString(),
		Type:        MessageError,
		Source:      m.Destination,
		Destination: m.Source,
		Action:      m.Action,
		Payload: map[string]any{
			"code":    string(code),
			"message": msg,
		},
		ParentID:  m.ID,
		Timestamp: time.Now(),
	}
}

// IsError reports whether the message carries an error payload.
func (m AgentMessage) IsError() bool {
	return m.Type == MessageError
}

// ErrorCode extracts the error code from an error message payload.
func (m AgentMessage) ErrorCode() ErrorCode {
	if !m.IsError() {
		return ""
	}
	if code, ok := m.Payload["code"].(string); ok {
		return ErrorCode(code)
	}
	return ErrInternalError
}

// PayloadString returns a string field from the payload, or "".
func (m AgentMessage) PayloadString(key string) string {
	if m.Payload == nil {
		return ""
	}
	s, _ := m.Payload[key].(string)
	return s
}
