package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-daltonize/pkg/frame"
)

func testFrame(w, h int) *frame.Frame {
	f := frame.New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Set(x, y, uint8(x*17), uint8(y*29), uint8((x+y)*7), 255)
		}
	}
	return f
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testFrame(w, h).Image()))
	return buf.Bytes()
}

func TestPNGRoundTrip(t *testing.T) {
	c := New()
	src := testFrame(13, 7)

	data, format, err := c.Encode(src, FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)

	got, format, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)
	assert.Equal(t, src.Width, got.Width)
	assert.Equal(t, src.Height, got.Height)
	assert.Equal(t, src.Pix, got.Pix)
}

func TestJPEGRoundTrip(t *testing.T) {
	c := New(WithQuality(95))
	src := frame.New(16, 16)
	src.Fill(200, 40, 40)

	data, format, err := c.Encode(src, FormatJPEG)
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, format)

	got, format, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, format)
	require.Equal(t, 16, got.Width)
	r, g, b, a := got.At(8, 8)
	assert.InDelta(t, 200, int(r), 8)
	assert.InDelta(t, 40, int(g), 8)
	assert.InDelta(t, 40, int(b), 8)
	assert.Equal(t, uint8(255), a)
}

func TestDecodeGIF(t *testing.T) {
	pal := color.Palette{color.Black, color.RGBA{R: 255, A: 255}}
	img := image.NewPaletted(image.Rect(0, 0, 4, 3), pal)
	img.SetColorIndex(1, 1, 1)
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))

	f, format, err := New().Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, FormatGIF, format)
	r, _, _, _ := f.At(1, 1)
	assert.Equal(t, uint8(255), r)
}

func TestEncodeFallsBackToPNG(t *testing.T) {
	data, format, err := New().Encode(testFrame(2, 2), FormatWebP)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)
	sniffed, err := Sniff(data)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, sniffed)
}

func TestDecodeErrors(t *testing.T) {
	c := New(WithMaxPixels(100))

	_, _, err := c.Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, _, err = c.Decode([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = c.Decode(encodePNG(t, 11, 10))
	var tl *frame.TooLargeError
	require.True(t, errors.As(err, &tl))
	assert.Equal(t, 11, tl.Width)

	full := encodePNG(t, 8, 8)
	_, _, err = c.Decode(full[:len(full)-20])
	var de *DecodeError
	assert.True(t, errors.As(err, &de))

	small := New(WithMaxInputBytes(10))
	_, _, err = small.Decode(full)
	assert.ErrorIs(t, err, ErrInputTooLarge)
}

func TestEncodeEmpty(t *testing.T) {
	_, _, err := New().Encode(frame.New(0, 3), FormatPNG)
	assert.ErrorIs(t, err, frame.ErrEmptyFrame)
}

func TestNativeFallback(t *testing.T) {
	if NativeAvailable() {
		t.Skip("built with OpenCV")
	}
	f, _, err := New(WithNative(true)).Decode(encodePNG(t, 3, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, f.Width)

	_, err = decodeNative(nil)
	assert.ErrorIs(t, err, ErrNativeUnavailable)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"png", FormatPNG, true},
		{"image/png", FormatPNG, true},
		{"jpg", FormatJPEG, true},
		{"image/jpeg", FormatJPEG, true},
		{"webp", FormatWebP, true},
		{"gif", FormatGIF, true},
		{"bmp", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "jpg", FormatJPEG.Extension())
	assert.Equal(t, "image/webp", FormatWebP.MIME())
}

func TestDataURL(t *testing.T) {
	raw := encodePNG(t, 2, 2)
	url := FormatDataURL(FormatPNG, raw)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	p, err := ParseDataURL(url)
	require.NoError(t, err)
	assert.True(t, p.DataURL)
	assert.Equal(t, "image/png", p.MIME)
	assert.Equal(t, raw, p.Data)

	p, err = ParseDataURL(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.False(t, p.DataURL)
	assert.Equal(t, raw, p.Data)

	p, err = ParseDataURL(base64.RawURLEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, p.Data)
}

func TestDataURLErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no comma", "data:image/png;base64"},
		{"not base64 param", "data:image/png,abcd"},
		{"bad payload", "data:image/png;base64,!!!!"},
		{"bad bare", "%%%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDataURL(tt.in)
			var de *DataURLError
			assert.True(t, errors.As(err, &de), "got %v", err)
		})
	}

	_, err := ParseDataURL("  ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
