package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// MessageType names a frame kind on the wire
type MessageType string

const (
	TypeJoin           MessageType = "join"
	TypeLeave          MessageType = "leave"
	TypePresenceUpdate MessageType = "presence_update"
	TypeCursorMove     MessageType = "cursor_move"
	TypeTextChange     MessageType = "text_change"
	TypeOperation      MessageType = "operation"
	TypeTypingStart    MessageType = "typing_start"
	TypeTypingStop     MessageType = "typing_stop"
	TypeTeamPresence   MessageType = "team_presence"
	TypeError          MessageType = "error"
)

// Message is the JSON frame exchanged with clients. Timestamp is unix
// milliseconds.
type Message struct {
	Type         MessageType     `json:"type"`
	UserID       string          `json:"userId,omitempty"`
	TeamID       string          `json:"teamId,omitempty"`
	ResourceID   string          `json:"resourceId,omitempty"`
	ResourceType string          `json:"resourceType,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Timestamp    int64           `json:"timestamp"`
}

// inboundFrame is what the hub reads from clients. Identity fields and the
// timestamp are ignored; the server stamps them.
type inboundFrame struct {
	Type         MessageType     `json:"type" validate:"required,max=64"`
	ResourceID   string          `json:"resourceId" validate:"max=256"`
	ResourceType string          `json:"resourceType" validate:"required_with=ResourceID,max=64"`
	Data         json.RawMessage `json:"data"`
}

// presenceData is the payload of presence_update
type presenceData struct {
	Location *string        `json:"location"`
	Activity map[string]any `json:"activity"`
}

// operationData is the payload of text_change and operation
type operationData struct {
	OperationType  string          `json:"operation_type" validate:"max=64"`
	Operation      json.RawMessage `json:"operation"`
	SequenceNumber *int64          `json:"sequence_number"`
}

// errorData is the payload of error frames
type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var validate = validator.New()

func parseFrame(raw []byte) (*inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &f, nil
}

// decodeData unmarshals an optional object payload into dst
func decodeData(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: invalid data: %v", ErrMalformedMessage, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: invalid data: %v", ErrMalformedMessage, err)
	}
	return nil
}

func newMessage(t MessageType, c *Connection, data any, now time.Time) (*Message, error) {
	msg := &Message{
		Type:      t,
		UserID:    c.UserID.String(),
		TeamID:    c.TeamID.String(),
		Timestamp: now.UnixMilli(),
	}
	if c.Resource != nil {
		msg.ResourceType = c.Resource.Type
		msg.ResourceID = c.Resource.ID
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s data: %w", t, err)
		}
		msg.Data = raw
	}
	return msg, nil
}

func jsonRaw(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	return raw, nil
}
