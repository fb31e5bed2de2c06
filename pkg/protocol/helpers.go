package protocol

import (
	"encoding/base64"
	"time"

	"github.com/teslashibe/go-daltonize/pkg/codec"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message. JSON messages carry the image as
// a data URL; msgpack messages carry it raw.
func NewFrameMessage(enc Encoding, format codec.Format, image []byte, deficiency string, strength *float64, seq uint64) (*Message, error) {
	data := FrameData{Deficiency: deficiency, Strength: strength, Seq: seq}
	if enc == EncodingMsgpack {
		data.Image = image
	} else {
		data.Frame = codec.FormatDataURL(format, image)
	}
	return NewMessageWith(enc, TypeFrame, data)
}

// NewParamsMessage creates a parameter change message
func NewParamsMessage(enc Encoding, deficiency string, strength *float64) (*Message, error) {
	return NewMessageWith(enc, TypeParams, ParamsData{Deficiency: deficiency, Strength: strength})
}

// NewStatusMessage creates a status message
func NewStatusMessage(enc Encoding, sessionID, state, message string, deficiencies []string) (*Message, error) {
	return NewMessageWith(enc, TypeStatus, StatusData{
		SessionID:    sessionID,
		State:        state,
		Message:      message,
		Deficiencies: deficiencies,
	})
}

// NewProcessedFrameMessage creates a processed frame message. In JSON the
// image is a data URL when asDataURL is set and bare base64 otherwise.
func NewProcessedFrameMessage(enc Encoding, format codec.Format, image []byte, asDataURL bool, seq uint64, width, height int, latency time.Duration) (*Message, error) {
	data := ProcessedFrameData{
		Format:    string(format),
		Seq:       seq,
		Width:     width,
		Height:    height,
		LatencyMs: latency.Milliseconds(),
	}
	switch {
	case enc == EncodingMsgpack:
		data.Image = image
	case asDataURL:
		data.Frame = codec.FormatDataURL(format, image)
	default:
		data.Frame = base64.StdEncoding.EncodeToString(image)
	}
	return NewMessageWith(enc, TypeProcessedFrame, data)
}

// NewErrorMessage creates an error message
func NewErrorMessage(enc Encoding, message, kind string, seq uint64) (*Message, error) {
	return NewMessageWith(enc, TypeError, ErrorData{Message: message, Kind: kind, Seq: seq})
}

// NewStatsMessage creates a stats message with an arbitrary payload
func NewStatsMessage(stats interface{}) (*Message, error) {
	return NewMessage(TypeStats, stats)
}

// NewPingMessage creates a ping message
func NewPingMessage(enc Encoding, id string) (*Message, error) {
	return NewMessageWith(enc, TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(enc Encoding, id string, pingTS, pongTS int64) (*Message, error) {
	latency := pongTS - pingTS
	if pingTS == 0 {
		latency = 0
	}
	return NewMessageWith(enc, TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: latency,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Payload returns the encoded image carried by the frame.
func (f *FrameData) Payload() (codec.Payload, error) {
	if len(f.Image) > 0 {
		return codec.Payload{Data: f.Image}, nil
	}
	return codec.ParseDataURL(f.Frame)
}

// GetParamsData extracts a parameter change from a message
func (m *Message) GetParamsData() (*ParamsData, error) {
	var data ParamsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatusData extracts status data from a message
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetProcessedFrameData extracts a processed frame from a message
func (m *Message) GetProcessedFrameData() (*ProcessedFrameData, error) {
	var data ProcessedFrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Payload returns the encoded image carried by the processed frame.
func (p *ProcessedFrameData) Payload() (codec.Payload, error) {
	if len(p.Image) > 0 {
		return codec.Payload{Data: p.Image}, nil
	}
	return codec.ParseDataURL(p.Frame)
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
