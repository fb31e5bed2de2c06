// Package codec converts between encoded images and frames.
//
// Decoding always reads the header first so oversized images are rejected
// before any pixel memory is allocated.
package codec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	"image/png"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/teslashibe/go-daltonize/pkg/frame"
)

// Format is a short image format name.
type Format string

// Supported formats. GIF and WebP are decode-only.
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
)

// Default configuration values.
const (
	DefaultQuality       = 85
	DefaultMaxInputBytes = 8 << 20
)

var mimeTypes = map[Format]string{
	FormatPNG:  "image/png",
	FormatJPEG: "image/jpeg",
	FormatGIF:  "image/gif",
	FormatWebP: "image/webp",
}

// MIME returns the media type for f.
func (f Format) MIME() string {
	return mimeTypes[f]
}

// Encodable reports whether frames can be written in f.
func (f Format) Encodable() bool {
	return f == FormatPNG || f == FormatJPEG
}

// Extension returns the file extension without a dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// ParseFormat maps a user-supplied name or MIME type to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "png", "image/png":
		return FormatPNG, nil
	case "jpeg", "jpg", "image/jpeg", "image/jpg":
		return FormatJPEG, nil
	case "gif", "image/gif":
		return FormatGIF, nil
	case "webp", "image/webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Sniff identifies the image type from magic bytes.
func Sniff(data []byte) (Format, error) {
	if len(data) == 0 {
		return "", ErrEmptyInput
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "", ErrUnsupportedFormat
	}
	f, err := ParseFormat(kind.MIME.Value)
	if err != nil {
		return "", ErrUnsupportedFormat
	}
	return f, nil
}

// Config holds codec configuration.
type Config struct {
	// MaxPixels rejects images whose header declares a larger area.
	MaxPixels int

	// MaxInputBytes rejects encoded payloads larger than this.
	MaxInputBytes int

	// Quality is the JPEG encoding quality (1-100).
	Quality int

	// Native decodes JPEG and PNG through OpenCV when built with -tags gocv.
	Native bool
}

// Option is a functional option for configuring a Codec.
type Option func(*Config)

// WithMaxPixels sets the decoded area limit.
func WithMaxPixels(n int) Option {
	return func(c *Config) { c.MaxPixels = n }
}

// WithMaxInputBytes sets the encoded size limit.
func WithMaxInputBytes(n int) Option {
	return func(c *Config) { c.MaxInputBytes = n }
}

// WithQuality sets the JPEG quality.
func WithQuality(q int) Option {
	return func(c *Config) { c.Quality = q }
}

// WithNative enables the OpenCV decode path.
func WithNative(enabled bool) Option {
	return func(c *Config) { c.Native = enabled }
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxPixels:     frame.DefaultMaxPixels,
		MaxInputBytes: DefaultMaxInputBytes,
		Quality:       DefaultQuality,
	}
}

// Codec decodes and encodes frames. It is safe for concurrent use.
type Codec struct {
	cfg Config
}

// New creates a codec.
func New(opts ...Option) *Codec {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultQuality
	}
	return &Codec{cfg: cfg}
}

// Config returns the codec configuration.
func (c *Codec) Config() Config {
	return c.cfg
}

// Decode parses an encoded image into a frame and reports its format.
func (c *Codec) Decode(data []byte) (*frame.Frame, Format, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyInput
	}
	if c.cfg.MaxInputBytes > 0 && len(data) > c.cfg.MaxInputBytes {
		return nil, "", fmt.Errorf("%w: %d bytes, limit %d", ErrInputTooLarge, len(data), c.cfg.MaxInputBytes)
	}

	format, err := Sniff(data)
	if err != nil {
		return nil, "", err
	}

	hdr, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, format, &DecodeError{Format: format, Err: err}
	}
	if hdr.Width <= 0 || hdr.Height <= 0 {
		return nil, format, frame.ErrEmptyFrame
	}
	if c.cfg.MaxPixels > 0 && hdr.Width*hdr.Height > c.cfg.MaxPixels {
		return nil, format, &frame.TooLargeError{Width: hdr.Width, Height: hdr.Height, MaxPixels: c.cfg.MaxPixels}
	}

	var img image.Image
	if c.cfg.Native && nativeAvailable && (format == FormatJPEG || format == FormatPNG) {
		img, err = decodeNative(data)
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, format, &DecodeError{Format: format, Err: err}
	}
	return frame.FromImage(img), format, nil
}

// Encode writes f in the given format. Decode-only formats fall back to PNG.
func (c *Codec) Encode(f *frame.Frame, format Format) ([]byte, Format, error) {
	if f.Empty() {
		return nil, "", frame.ErrEmptyFrame
	}
	if !format.Encodable() {
		format = FormatPNG
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, f.Image(), &jpeg.Options{Quality: c.cfg.Quality})
	default:
		err = png.Encode(&buf, f.Image())
	}
	if err != nil {
		return nil, "", fmt.Errorf("codec: encode %s: %w", format, err)
	}
	return buf.Bytes(), format, nil
}

// NativeAvailable reports whether the OpenCV backend was compiled in.
func NativeAvailable() bool {
	return nativeAvailable
}
