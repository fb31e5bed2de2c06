package codec

import (
	"encoding/base64"
	"strings"
)

// Payload is an encoded image lifted out of a text message.
type Payload struct {
	Data []byte

	// MIME is the declared media type, empty for bare base64.
	MIME string

	// DataURL records whether the source used the data: scheme so replies
	// can answer in kind.
	DataURL bool
}

// ParseDataURL accepts "data:<mime>;base64,<payload>" or bare base64.
func ParseDataURL(s string) (Payload, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Payload{}, ErrEmptyInput
	}

	if !strings.HasPrefix(s, "data:") {
		data, err := decodeBase64(s)
		if err != nil {
			return Payload{}, &DataURLError{Reason: "bad base64", Err: err}
		}
		return Payload{Data: data}, nil
	}

	header, body, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return Payload{}, &DataURLError{Reason: "missing comma"}
	}
	mime, params, _ := strings.Cut(header, ";")
	if !strings.Contains(params, "base64") {
		return Payload{}, &DataURLError{Reason: "only base64 payloads are supported"}
	}
	data, err := decodeBase64(body)
	if err != nil {
		return Payload{}, &DataURLError{Reason: "bad base64", Err: err}
	}
	if len(data) == 0 {
		return Payload{}, ErrEmptyInput
	}
	return Payload{Data: data, MIME: mime, DataURL: true}, nil
}

// FormatDataURL renders data as a base64 data URL of the given format.
func FormatDataURL(f Format, data []byte) string {
	var b strings.Builder
	enc := base64.StdEncoding
	b.Grow(len("data:;base64,") + len(f.MIME()) + enc.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(f.MIME())
	b.WriteString(";base64,")
	b.WriteString(enc.EncodeToString(data))
	return b.String()
}

// decodeBase64 accepts padded and unpadded standard or URL-safe alphabets.
func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return nil, err
}
