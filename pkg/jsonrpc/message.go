// Package jsonrpc implements the bridge wire format: JSON-RPC 2.0
// requests and responses plus the bridge-specific notification
// extensions (close_tab, reconnected, wallet_event). Messages are
// discriminated structurally rather than by an explicit tag: a method
// marks a request, a result or error marks a response, and a recognized
// type value marks a notification.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Version is the JSON-RPC protocol version carried on every request and
// response.
const Version = "2.0"

// Kind classifies a validated message.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindNotification
)

// String returns the string representation of a message kind
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// NotificationType enumerates the bridge notification extensions.
type NotificationType string

const (
	// NotifyCloseTab asks the hosting window or tab to close itself.
	NotifyCloseTab NotificationType = "close_tab"

	// NotifyReconnected tells an older bridge connection that a newer
	// one has taken over and it should stop reconnecting.
	NotifyReconnected NotificationType = "reconnected"

	// NotifyWalletEvent carries a forwarded provider event.
	NotifyWalletEvent NotificationType = "wallet_event"
)

// Common validation errors.
var (
	// ErrParse is returned when a payload matches none of the three
	// message shapes.
	ErrParse = errors.New("payload matches no bridge message shape")

	// ErrResponseShape is returned when a response carries both or
	// neither of result and error.
	ErrResponseShape = errors.New("response must carry exactly one of result or error")
)

// ErrorObject is the JSON-RPC error member of a response.
type ErrorObject struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface so provider rejections can be
// passed around as ordinary Go errors.
func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Message is the single wire type for requests, responses, and bridge
// notifications. Which fields are populated depends on the kind.
type Message struct {
	Version string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  []interface{}   `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`

	// Bridge notification extensions.
	Type      NotificationType `json:"type,omitempty"`
	Data      interface{}      `json:"data,omitempty"`
	EventName string           `json:"eventName,omitempty"`
	EventData interface{}      `json:"eventData,omitempty"`
}

// Validate parses raw and checks it against the three message shapes.
// It returns ErrParse (possibly wrapped) when nothing matches and
// ErrResponseShape for a response violating the result-xor-error
// invariant.
func Validate(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	switch {
	case msg.Method != "":
		if len(msg.ID) == 0 {
			return nil, fmt.Errorf("%w: request without id", ErrParse)
		}
		return &msg, nil

	case msg.Result != nil || msg.Error != nil:
		if msg.Result != nil && msg.Error != nil {
			return nil, ErrResponseShape
		}
		if len(msg.ID) == 0 {
			return nil, fmt.Errorf("%w: response without id", ErrParse)
		}
		return &msg, nil

	case msg.Type != "":
		switch msg.Type {
		case NotifyCloseTab, NotifyReconnected:
			return &msg, nil
		case NotifyWalletEvent:
			if msg.EventName == "" {
				return nil, fmt.Errorf("%w: wallet_event without eventName", ErrParse)
			}
			return &msg, nil
		}
		return nil, fmt.Errorf("%w: unknown notification type %q", ErrParse, msg.Type)
	}

	return nil, ErrParse
}

// Classify reports the kind of a validated message using the structural
// discrimination rules: method, then result/error, then type.
func Classify(msg *Message) Kind {
	switch {
	case msg.Method != "":
		return KindRequest
	case msg.Result != nil || msg.Error != nil:
		return KindResponse
	default:
		return KindNotification
	}
}

// NewRequest builds a request message.
func NewRequest(id json.RawMessage, method string, params []interface{}) *Message {
	return &Message{
		Version: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// NewResult builds a success response. Exactly the result member is set.
func NewResult(id json.RawMessage, result interface{}) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Message{
		Version: Version,
		ID:      id,
		Result:  raw,
	}, nil
}

// NewError builds an error response. Exactly the error member is set.
func NewError(id json.RawMessage, code int, message string, data interface{}) *Message {
	return &Message{
		Version: Version,
		ID:      id,
		Error: &ErrorObject{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// NewNotification builds a bare notification of the given type.
func NewNotification(t NotificationType) *Message {
	return &Message{Type: t}
}

// NewWalletEvent builds a wallet_event notification.
func NewWalletEvent(eventName string, eventData interface{}) *Message {
	return &Message{
		Type:      NotifyWalletEvent,
		EventName: eventName,
		EventData: eventData,
	}
}

// StringID makes a string request ID.
func StringID(id string) json.RawMessage {
	raw, _ := json.Marshal(id)
	return raw
}

// NumberID makes a numeric request ID.
func NumberID(id int64) json.RawMessage {
	return json.RawMessage(strconv.FormatInt(id, 10))
}

// RecoverID extracts a usable ID from an arbitrary payload so a parse
// failure can still be answered. Numeric IDs are stringified so callers
// correlating by string ID agree. The second return is false when no ID
// is recoverable and the payload must be dropped.
func RecoverID(raw []byte) (json.RawMessage, bool) {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, false
	}
	if len(probe.ID) == 0 || bytes.Equal(probe.ID, []byte("null")) {
		return nil, false
	}

	var s string
	if err := json.Unmarshal(probe.ID, &s); err == nil {
		return StringID(s), true
	}
	var n json.Number
	if err := json.Unmarshal(probe.ID, &n); err == nil {
		return StringID(n.String()), true
	}
	return nil, false
}

// EqualID reports whether two raw IDs identify the same request.
func EqualID(a, b json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
}
