// Package protocol defines the WebSocket message types for the correction
// stream. Text frames carry JSON envelopes; binary frames carry the same
// envelope encoded with MessagePack so images travel as raw bytes.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Server messages
	TypeFrame  MessageType = "frame"  // Encoded image to correct
	TypeParams MessageType = "params" // Deficiency/strength change

	// Server → Client messages
	TypeStatus         MessageType = "status"          // Session state
	TypeProcessedFrame MessageType = "processed_frame" // Corrected image
	TypeError          MessageType = "error"           // Per-frame or per-message failure
	TypeStats          MessageType = "stats"           // Registry counters (stats feed)

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Encoding selects the envelope serialization.
type Encoding uint8

const (
	// EncodingJSON is used for text frames.
	EncodingJSON Encoding = iota
	// EncodingMsgpack is used for binary frames.
	EncodingMsgpack
)

// String returns the encoding name.
func (e Encoding) String() string {
	if e == EncodingMsgpack {
		return "msgpack"
	}
	return "json"
}

// Marshal encodes v.
func (e Encoding) Marshal(v interface{}) ([]byte, error) {
	if e == EncodingMsgpack {
		return msgpack.Marshal(v)
	}
	return json.Marshal(v)
}

// Unmarshal decodes b into v.
func (e Encoding) Unmarshal(b []byte, v interface{}) error {
	if e == EncodingMsgpack {
		return msgpack.Unmarshal(b, v)
	}
	return json.Unmarshal(b, v)
}

// Message is the base wrapper for all WebSocket messages. Data holds the
// payload already encoded with Encoding.
type Message struct {
	Type      MessageType
	Timestamp int64 // Unix milliseconds
	Data      []byte
	Encoding  Encoding
}

type jsonEnvelope struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type msgpackEnvelope struct {
	Type      MessageType        `msgpack:"type"`
	Timestamp int64              `msgpack:"ts,omitempty"`
	Data      msgpack.RawMessage `msgpack:"data,omitempty"`
}

// NewMessage creates a JSON message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	return NewMessageWith(EncodingJSON, msgType, data)
}

// NewMessageWith creates a message in the given encoding.
func NewMessageWith(enc Encoding, msgType MessageType, data interface{}) (*Message, error) {
	var raw []byte
	if data != nil {
		var err error
		raw, err = enc.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
		Encoding:  enc,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if len(m.Data) == 0 {
		return nil
	}
	return m.Encoding.Unmarshal(m.Data, v)
}

// Bytes returns the encoded envelope
func (m *Message) Bytes() ([]byte, error) {
	if m.Encoding == EncodingMsgpack {
		return msgpack.Marshal(msgpackEnvelope{Type: m.Type, Timestamp: m.Timestamp, Data: m.Data})
	}
	return json.Marshal(jsonEnvelope{Type: m.Type, Timestamp: m.Timestamp, Data: m.Data})
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	return Parse(EncodingJSON, data)
}

// Parse parses an envelope in the given encoding.
func Parse(enc Encoding, data []byte) (*Message, error) {
	var msg Message
	switch enc {
	case EncodingMsgpack:
		var env msgpackEnvelope
		if err := msgpack.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("failed to parse message: %w", err)
		}
		msg = Message{Type: env.Type, Timestamp: env.Timestamp, Data: env.Data}
	default:
		var env jsonEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("failed to parse message: %w", err)
		}
		msg = Message{Type: env.Type, Timestamp: env.Timestamp, Data: env.Data}
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	msg.Encoding = enc
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// FrameData carries one image to correct. Text frames use Frame (a data
// URL or bare base64); binary frames use Image.
type FrameData struct {
	Frame      string   `json:"frame,omitempty" msgpack:"-"`
	Image      []byte   `json:"-" msgpack:"frame,omitempty"`
	Deficiency string   `json:"deficiency,omitempty" msgpack:"deficiency,omitempty"`
	Strength   *float64 `json:"strength,omitempty" msgpack:"strength,omitempty"`
	Seq        uint64   `json:"seq,omitempty" msgpack:"seq,omitempty"`
}

// ParamsData changes the session's correction parameters.
type ParamsData struct {
	Deficiency string   `json:"deficiency,omitempty" msgpack:"deficiency,omitempty"`
	Strength   *float64 `json:"strength,omitempty" msgpack:"strength,omitempty"`
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// StatusData reports session state.
type StatusData struct {
	SessionID    string   `json:"session_id" msgpack:"session_id"`
	State        string   `json:"state" msgpack:"state"`
	Message      string   `json:"message,omitempty" msgpack:"message,omitempty"`
	Deficiencies []string `json:"deficiencies,omitempty" msgpack:"deficiencies,omitempty"`
}

// ProcessedFrameData carries one corrected image.
type ProcessedFrameData struct {
	Frame     string `json:"frame,omitempty" msgpack:"-"`
	Image     []byte `json:"-" msgpack:"frame,omitempty"`
	Format    string `json:"format" msgpack:"format"`
	Seq       uint64 `json:"seq" msgpack:"seq"`
	Width     int    `json:"width" msgpack:"width"`
	Height    int    `json:"height" msgpack:"height"`
	LatencyMs int64  `json:"latency_ms" msgpack:"latency_ms"`
}

// ErrorData reports a non-fatal failure.
type ErrorData struct {
	Message string `json:"message" msgpack:"message"`
	Kind    string `json:"kind" msgpack:"kind"`
	Seq     uint64 `json:"seq,omitempty" msgpack:"seq,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id" msgpack:"id"`
	Timestamp int64  `json:"ts" msgpack:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id" msgpack:"id"`
	PingTS    int64  `json:"ping_ts" msgpack:"ping_ts"`
	PongTS    int64  `json:"pong_ts" msgpack:"pong_ts"`
	LatencyMs int64  `json:"latency_ms" msgpack:"latency_ms"`
}
