package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-daltonize/pkg/codec"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		enc     Encoding
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "json params",
			enc:     EncodingJSON,
			msgType: TypeParams,
			data:    ParamsData{Deficiency: "deuteranopia"},
		},
		{
			name:    "msgpack status",
			enc:     EncodingMsgpack,
			msgType: TypeStatus,
			data:    StatusData{SessionID: "abc", State: "connected"},
		},
		{
			name:    "nil data",
			enc:     EncodingJSON,
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable",
			enc:     EncodingJSON,
			msgType: TypeStats,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessageWith(tt.enc, tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessageWith() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("timestamp should be set")
			}
			if msg.Encoding != tt.enc {
				t.Errorf("encoding = %v, want %v", msg.Encoding, tt.enc)
			}
		})
	}
}

func TestJSONEnvelopeShape(t *testing.T) {
	msg, err := NewParamsMessage(EncodingJSON, "protanopia", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := msg.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"type", "ts", "data"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("envelope missing %q: %s", key, b)
		}
	}
	if string(raw["type"]) != `"params"` {
		t.Errorf("type = %s", raw["type"])
	}
}

func TestParseClientFrame(t *testing.T) {
	// Shape sent by the browser client.
	in := `{"type":"frame","data":{"frame":"data:image/png;base64,iVBORw0KGgo=","deficiency":"deuteranopia","strength":0.5,"seq":7}}`

	msg, err := ParseMessage([]byte(in))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	fd, err := msg.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	if fd.Deficiency != "deuteranopia" || fd.Seq != 7 {
		t.Errorf("unexpected frame data %+v", fd)
	}
	if fd.Strength == nil || *fd.Strength != 0.5 {
		t.Errorf("strength = %v, want 0.5", fd.Strength)
	}

	p, err := fd.Payload()
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	if !p.DataURL || p.MIME != "image/png" {
		t.Errorf("payload = %+v", p)
	}
	if !bytes.HasPrefix(p.Data, []byte{0x89, 'P', 'N', 'G'}) {
		t.Errorf("payload bytes = %x", p.Data)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		enc  Encoding
		in   []byte
	}{
		{"bad json", EncodingJSON, []byte("{")},
		{"missing type", EncodingJSON, []byte(`{"data":{}}`)},
		{"bad msgpack", EncodingMsgpack, []byte{0xc1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.enc, tt.in); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMsgpackFrameRoundTrip(t *testing.T) {
	img := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
	s := 0.25

	msg, err := NewFrameMessage(EncodingMsgpack, codec.FormatJPEG, img, "tritan", &s, 3)
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}
	b, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	if bytes.Contains(b, []byte("data:image")) {
		t.Error("binary frame should not carry a data URL")
	}

	parsed, err := Parse(EncodingMsgpack, b)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.Type != TypeFrame {
		t.Errorf("type = %v, want %v", parsed.Type, TypeFrame)
	}
	fd, err := parsed.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	if !bytes.Equal(fd.Image, img) {
		t.Errorf("image = %x, want %x", fd.Image, img)
	}
	if fd.Frame != "" {
		t.Errorf("frame = %q, want empty", fd.Frame)
	}
	if fd.Strength == nil || *fd.Strength != 0.25 {
		t.Errorf("strength = %v", fd.Strength)
	}
	p, err := fd.Payload()
	if err != nil {
		t.Fatal(err)
	}
	if p.DataURL {
		t.Error("raw payload reported as data URL")
	}
}

func TestJSONFrameRoundTrip(t *testing.T) {
	img := []byte("fake png")
	msg, err := NewFrameMessage(EncodingJSON, codec.FormatPNG, img, "protan", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := msg.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseMessage(b)
	if err != nil {
		t.Fatal(err)
	}
	fd, err := parsed.GetFrameData()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(fd.Frame, "data:image/png;base64,") {
		t.Errorf("frame = %q", fd.Frame)
	}
	if fd.Strength != nil {
		t.Errorf("strength = %v, want nil", *fd.Strength)
	}
	p, err := fd.Payload()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p.Data, img) {
		t.Errorf("payload = %q", p.Data)
	}
}

func TestProcessedFrameMessage(t *testing.T) {
	img := []byte("processed")
	tests := []struct {
		name      string
		enc       Encoding
		dataURL   bool
		wantFrame string
	}{
		{"json data url", EncodingJSON, true, codec.FormatDataURL(codec.FormatJPEG, img)},
		{"json base64", EncodingJSON, false, "cHJvY2Vzc2Vk"},
		{"msgpack", EncodingMsgpack, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewProcessedFrameMessage(tt.enc, codec.FormatJPEG, img, tt.dataURL, 9, 640, 480, 15*time.Millisecond)
			if err != nil {
				t.Fatal(err)
			}
			b, err := msg.Bytes()
			if err != nil {
				t.Fatal(err)
			}
			parsed, err := Parse(tt.enc, b)
			if err != nil {
				t.Fatal(err)
			}
			pf, err := parsed.GetProcessedFrameData()
			if err != nil {
				t.Fatal(err)
			}
			if pf.Frame != tt.wantFrame {
				t.Errorf("frame = %q, want %q", pf.Frame, tt.wantFrame)
			}
			if pf.Seq != 9 || pf.Width != 640 || pf.Height != 480 || pf.LatencyMs != 15 {
				t.Errorf("unexpected metadata %+v", pf)
			}
			if pf.Format != "jpeg" {
				t.Errorf("format = %q", pf.Format)
			}
			p, err := pf.Payload()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(p.Data, img) {
				t.Errorf("payload = %q", p.Data)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage(EncodingJSON, "bad frame", "input", 4)
	if err != nil {
		t.Fatal(err)
	}
	ed, err := msg.GetErrorData()
	if err != nil {
		t.Fatal(err)
	}
	if ed.Message != "bad frame" || ed.Kind != "input" || ed.Seq != 4 {
		t.Errorf("unexpected error data %+v", ed)
	}
}

func TestStatusMessage(t *testing.T) {
	msg, err := NewStatusMessage(EncodingMsgpack, "id-1", "active", "", []string{"protanopia"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := msg.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := Parse(EncodingMsgpack, b)
	if err != nil {
		t.Fatal(err)
	}
	sd, err := parsed.GetStatusData()
	if err != nil {
		t.Fatal(err)
	}
	if sd.SessionID != "id-1" || sd.State != "active" || len(sd.Deficiencies) != 1 {
		t.Errorf("unexpected status %+v", sd)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage(EncodingJSON, "test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}
	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}
	if pingData.Timestamp == 0 {
		t.Error("ping timestamp should be set")
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage(EncodingJSON, "test-123", pingData.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}
	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}
	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}

	unset, err := NewPongMessage(EncodingJSON, "x", 0, now)
	if err != nil {
		t.Fatal(err)
	}
	pd, _ := unset.GetPongData()
	if pd.LatencyMs != 0 {
		t.Errorf("LatencyMs = %v, want 0 without ping timestamp", pd.LatencyMs)
	}
}

func TestEmptyDataParsesToZero(t *testing.T) {
	msg := &Message{Type: TypePing}
	pd, err := msg.GetPingData()
	if err != nil {
		t.Fatal(err)
	}
	if pd.ID != "" {
		t.Errorf("ID = %q", pd.ID)
	}
}
