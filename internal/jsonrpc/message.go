package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the only JSON-RPC protocol version spoken
const Version = "2.0"

// MessageType represents the type of JSON-RPC message
type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeResponse     MessageType = "response"
	MessageTypeNotification MessageType = "notification"
	MessageTypeError        MessageType = "error"
)

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ErrorInfo contains details about JSON-RPC errors
type ErrorInfo struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *ErrorInfo) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Message is a decoded JSON-RPC 2.0 message
type Message struct {
	msgType   MessageType
	method    string
	id        json.RawMessage
	params    json.RawMessage
	result    json.RawMessage
	errorInfo *ErrorInfo
	raw       json.RawMessage
}

// outgoing is the wire form of every message this package writes
type outgoing struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Method  string      `json:"method,omitempty"`
	Params  interface{} `json:"params,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// Parse decodes raw JSON-RPC data and classifies it
func Parse(rawData []byte) (*Message, error) {
	var baseMsg struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method,omitempty"`
		ID      json.RawMessage `json:"id,omitempty"`
		Params  json.RawMessage `json:"params,omitempty"`
		Result  json.RawMessage `json:"result,omitempty"`
		Error   *ErrorInfo      `json:"error,omitempty"`
	}

	if err := json.Unmarshal(rawData, &baseMsg); err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC message: %w", err)
	}

	if baseMsg.JSONRPC != Version {
		return nil, fmt.Errorf("unsupported JSON-RPC version: %q", baseMsg.JSONRPC)
	}

	hasID := len(baseMsg.ID) > 0 && string(baseMsg.ID) != "null"

	msg := &Message{
		method: baseMsg.Method,
		params: baseMsg.Params,
		result: baseMsg.Result,
		raw:    append(json.RawMessage(nil), rawData...),
	}
	if hasID {
		msg.id = baseMsg.ID
	}

	switch {
	case baseMsg.Error != nil:
		msg.msgType = MessageTypeError
		msg.errorInfo = baseMsg.Error
	case baseMsg.Method != "" && hasID:
		msg.msgType = MessageTypeRequest
	case baseMsg.Method != "":
		msg.msgType = MessageTypeNotification
	case hasID:
		msg.msgType = MessageTypeResponse
	default:
		return nil, fmt.Errorf("cannot determine JSON-RPC message type")
	}

	return msg, nil
}

// Type returns the message type
func (m *Message) Type() MessageType {
	return m.msgType
}

// Method returns the JSON-RPC method name
func (m *Message) Method() string {
	return m.method
}

// ID returns the raw request ID, nil for notifications
func (m *Message) ID() json.RawMessage {
	return m.id
}

// IntID returns the request ID when it is an integer, as every ID this client issues is.
func (m *Message) IntID() (int64, bool) {
	if len(m.id) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(string(m.id), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Params returns the raw params
func (m *Message) Params() json.RawMessage {
	return m.params
}

// Result returns the raw result of a response
func (m *Message) Result() json.RawMessage {
	return m.result
}

// ErrorInfo returns error details for error messages
func (m *Message) ErrorInfo() *ErrorInfo {
	return m.errorInfo
}

// Raw returns a copy of the original payload
func (m *Message) Raw() json.RawMessage {
	return append(json.RawMessage(nil), m.raw...)
}

// IsRequest returns true if this is a request message
func (m *Message) IsRequest() bool {
	return m.msgType == MessageTypeRequest
}

// IsResponse returns true for both successful and error responses
func (m *Message) IsResponse() bool {
	return m.msgType == MessageTypeResponse || m.msgType == MessageTypeError
}

// IsNotification returns true if this is a notification message
func (m *Message) IsNotification() bool {
	return m.msgType == MessageTypeNotification
}

// String returns a short human-readable description
func (m *Message) String() string {
	if m.method != "" {
		return fmt.Sprintf("%s %s", m.msgType, m.method)
	}
	return fmt.Sprintf("%s %s", m.msgType, string(m.id))
}
